package protocol

import (
	"time"

	"github.com/bep/debounce"
)

// listChangedDebounce coalesces bursts of registry mutations (several tools
// registered back to back, for example) into a single
// notifications/*/list_changed delivery, the same shape
// github.com/bep/debounce is built for coalescing bursty change events.
type listChangedDebounce struct {
	fire func(func())
}

func newListChangedDebounce(window time.Duration) *listChangedDebounce {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	return &listChangedDebounce{fire: debounce.New(window)}
}

// Trigger schedules send to run after the debounce window elapses, dropping
// any send scheduled within that window before it.
func (d *listChangedDebounce) Trigger(send func()) {
	d.fire(send)
}

package registry

import (
	"context"
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcpcore/internal/errors"
)

type promptEntry struct {
	prompt  Prompt
	enabled bool
}

// PromptRegistry is a thread-safe catalog of parameterized prompts.
// Absent from the teacher entirely; structured identically to ToolRegistry.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*promptEntry

	onChanged func()
}

// NewPromptRegistry creates an empty prompt registry. onChanged may be nil.
func NewPromptRegistry(onChanged func()) *PromptRegistry {
	return &PromptRegistry{
		prompts:   make(map[string]*promptEntry),
		onChanged: onChanged,
	}
}

func (r *PromptRegistry) notify() {
	if r.onChanged != nil {
		r.onChanged()
	}
}

// Register adds a prompt under name, enabled by default.
func (r *PromptRegistry) Register(name string, prompt Prompt) error {
	if name == "" {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("prompt name cannot be empty"))
	}
	if prompt == nil {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("prompt cannot be nil"))
	}

	r.mu.Lock()
	if _, exists := r.prompts[name]; exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, ErrPromptAlreadyRegistered).
			WithContext("prompt_name", name)
	}
	r.prompts[name] = &promptEntry{prompt: prompt, enabled: true}
	r.mu.Unlock()

	r.notify()
	return nil
}

// Remove deletes a prompt.
func (r *PromptRegistry) Remove(name string) error {
	r.mu.Lock()
	if _, exists := r.prompts[name]; !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Remove", internalerrors.ErrNotFound, ErrPromptNotFound).
			WithContext("prompt_name", name)
	}
	delete(r.prompts, name)
	r.mu.Unlock()

	r.notify()
	return nil
}

// SetEnabled toggles whether a prompt is visible to List/Get.
func (r *PromptRegistry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	entry, exists := r.prompts[name]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "SetEnabled", internalerrors.ErrNotFound, ErrPromptNotFound).
			WithContext("prompt_name", name)
	}
	changed := entry.enabled != enabled
	entry.enabled = enabled
	r.mu.Unlock()

	if changed {
		r.notify()
	}
	return nil
}

// Get retrieves an enabled prompt by name.
func (r *PromptRegistry) Get(name string) (Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.prompts[name]
	if !exists || !entry.enabled {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrNotFound, ErrPromptNotFound).
			WithContext("prompt_name", name)
	}
	return entry.prompt, nil
}

// List returns one page of enabled prompt definitions in name order.
func (r *PromptRegistry) List(ctx context.Context, cursor string, pageSize int) ([]PromptDefinition, string, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.prompts))
	for name, entry := range r.prompts {
		if entry.enabled {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	page, next, err := paginate(names, cursor, pageSize)
	if err != nil {
		return nil, "", internalerrors.New("registry", "List", internalerrors.ErrBadRequest, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]PromptDefinition, 0, len(page))
	for _, name := range page {
		if entry, ok := r.prompts[name]; ok {
			defs = append(defs, entry.prompt.Definition())
		}
	}
	return defs, next, nil
}

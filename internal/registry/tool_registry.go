package registry

import (
	"context"
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcpcore/internal/errors"
)

type toolEntry struct {
	tool    Tool
	enabled bool
}

// ToolRegistry is a thread-safe catalog of tools, mirroring the teacher's
// sync.RWMutex-guarded map registries but extended with enable/disable,
// update, remove, and paginated listing.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*toolEntry

	// onChanged is invoked (outside the lock) after any mutation that
	// changes the set of tools visible to tools/list. The protocol engine
	// wires this to its debounced notifications/tools/list_changed sender.
	onChanged func()
}

// NewToolRegistry creates an empty tool registry. onChanged may be nil.
func NewToolRegistry(onChanged func()) *ToolRegistry {
	return &ToolRegistry{
		tools:     make(map[string]*toolEntry),
		onChanged: onChanged,
	}
}

func (r *ToolRegistry) notify() {
	if r.onChanged != nil {
		r.onChanged()
	}
}

// Register adds a tool under name, enabled by default.
func (r *ToolRegistry) Register(name string, tool Tool) error {
	if name == "" {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("tool name cannot be empty"))
	}
	if tool == nil {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("tool cannot be nil"))
	}

	r.mu.Lock()
	if _, exists := r.tools[name]; exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, ErrToolAlreadyRegistered).
			WithContext("tool_name", name)
	}
	r.tools[name] = &toolEntry{tool: tool, enabled: true}
	r.mu.Unlock()

	r.notify()
	return nil
}

// Update replaces the implementation of an already-registered tool without
// changing its enabled state.
func (r *ToolRegistry) Update(name string, tool Tool) error {
	if tool == nil {
		return internalerrors.New("registry", "Update", internalerrors.ErrBadRequest, fmt.Errorf("tool cannot be nil"))
	}

	r.mu.Lock()
	entry, exists := r.tools[name]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Update", internalerrors.ErrNotFound, ErrToolNotFound).
			WithContext("tool_name", name)
	}
	entry.tool = tool
	r.mu.Unlock()

	r.notify()
	return nil
}

// Remove deletes a tool from the registry.
func (r *ToolRegistry) Remove(name string) error {
	r.mu.Lock()
	if _, exists := r.tools[name]; !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Remove", internalerrors.ErrNotFound, ErrToolNotFound).
			WithContext("tool_name", name)
	}
	delete(r.tools, name)
	r.mu.Unlock()

	r.notify()
	return nil
}

// SetEnabled toggles whether a tool is visible to List/Get without removing it.
func (r *ToolRegistry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	entry, exists := r.tools[name]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "SetEnabled", internalerrors.ErrNotFound, ErrToolNotFound).
			WithContext("tool_name", name)
	}
	changed := entry.enabled != enabled
	entry.enabled = enabled
	r.mu.Unlock()

	if changed {
		r.notify()
	}
	return nil
}

// Get retrieves an enabled tool by name. Disabled tools are reported as not found.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists || !entry.enabled {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrNotFound, ErrToolNotFound).
			WithContext("tool_name", name)
	}
	return entry.tool, nil
}

// List returns one page of enabled tool definitions in name order.
func (r *ToolRegistry) List(ctx context.Context, cursor string, pageSize int) ([]ToolDefinition, string, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name, entry := range r.tools {
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
	defs := make([]ToolDefinition, 0, len(page))
	for _, name := range page {
		if entry, ok := r.tools[name]; ok {
			defs = append(defs, entry.tool.Definition())
		}
	}
	return defs, next, nil
}

package registry

import (
	"context"
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcpcore/internal/errors"
	"github.com/yosida95/uritemplate/v3"
)

type resourceEntry struct {
	provider ResourceProvider
	enabled  bool
}

type templateEntry struct {
	tmpl     *uritemplate.Template
	provider ResourceTemplateProvider
	enabled  bool
}

// ResourceRegistry is a thread-safe catalog of concrete resources and
// RFC 6570 resource templates, with per-URI subscription fan-out.
type ResourceRegistry struct {
	mu sync.RWMutex

	resources map[string]*resourceEntry
	// templateOrder preserves registration order: the first template whose
	// variables match a URI wins, matching the teacher's map iteration
	// replaced with an explicit ordered slice for determinism.
	templateOrder []string
	templates     map[string]*templateEntry

	subs map[string]map[string]struct{} // uri -> sessionID -> struct{}

	onListChanged func()
	onUpdated     func(uri string)
}

// NewResourceRegistry creates an empty resource registry. Either callback
// may be nil.
func NewResourceRegistry(onListChanged func(), onUpdated func(uri string)) *ResourceRegistry {
	return &ResourceRegistry{
		resources:     make(map[string]*resourceEntry),
		templates:     make(map[string]*templateEntry),
		subs:          make(map[string]map[string]struct{}),
		onListChanged: onListChanged,
		onUpdated:     onUpdated,
	}
}

func (r *ResourceRegistry) notifyListChanged() {
	if r.onListChanged != nil {
		r.onListChanged()
	}
}

// RegisterResource registers a concrete resource provider for uri.
func (r *ResourceRegistry) RegisterResource(uri string, provider ResourceProvider) error {
	if uri == "" {
		return internalerrors.New("registry", "RegisterResource", internalerrors.ErrBadRequest, fmt.Errorf("resource uri cannot be empty"))
	}
	if provider == nil {
		return internalerrors.New("registry", "RegisterResource", internalerrors.ErrBadRequest, fmt.Errorf("resource provider cannot be nil"))
	}

	r.mu.Lock()
	if _, exists := r.resources[uri]; exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "RegisterResource", internalerrors.ErrBadRequest, ErrResourceAlreadyRegistered).
			WithContext("resource_uri", uri)
	}
	r.resources[uri] = &resourceEntry{provider: provider, enabled: true}
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// RemoveResource deletes a concrete resource and drops its subscribers.
func (r *ResourceRegistry) RemoveResource(uri string) error {
	r.mu.Lock()
	if _, exists := r.resources[uri]; !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "RemoveResource", internalerrors.ErrNotFound, ErrResourceNotFound).
			WithContext("resource_uri", uri)
	}
	delete(r.resources, uri)
	delete(r.subs, uri)
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// SetEnabled toggles whether a concrete resource is visible to Read/List
// without removing it.
func (r *ResourceRegistry) SetEnabled(uri string, enabled bool) error {
	r.mu.Lock()
	entry, exists := r.resources[uri]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "SetEnabled", internalerrors.ErrNotFound, ErrResourceNotFound).
			WithContext("resource_uri", uri)
	}
	changed := entry.enabled != enabled
	entry.enabled = enabled
	r.mu.Unlock()

	if changed {
		r.notifyListChanged()
	}
	return nil
}

// Update replaces the provider backing an already-registered resource
// without changing its enabled state.
func (r *ResourceRegistry) Update(uri string, provider ResourceProvider) error {
	if provider == nil {
		return internalerrors.New("registry", "Update", internalerrors.ErrBadRequest, fmt.Errorf("resource provider cannot be nil"))
	}

	r.mu.Lock()
	entry, exists := r.resources[uri]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "Update", internalerrors.ErrNotFound, ErrResourceNotFound).
			WithContext("resource_uri", uri)
	}
	entry.provider = provider
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// RegisterTemplate registers a resource template under the given RFC 6570
// template string. Later templates are tried only after earlier ones fail
// to match, per registration order.
func (r *ResourceRegistry) RegisterTemplate(rawTemplate string, provider ResourceTemplateProvider) error {
	if rawTemplate == "" {
		return internalerrors.New("registry", "RegisterTemplate", internalerrors.ErrBadRequest, fmt.Errorf("uri template cannot be empty"))
	}
	if provider == nil {
		return internalerrors.New("registry", "RegisterTemplate", internalerrors.ErrBadRequest, fmt.Errorf("template provider cannot be nil"))
	}

	tmpl, err := uritemplate.New(rawTemplate)
	if err != nil {
		return internalerrors.New("registry", "RegisterTemplate", internalerrors.ErrBadRequest, err).
			WithContext("uri_template", rawTemplate)
	}

	r.mu.Lock()
	if _, exists := r.templates[rawTemplate]; exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "RegisterTemplate", internalerrors.ErrBadRequest, ErrTemplateAlreadyRegistered).
			WithContext("uri_template", rawTemplate)
	}
	r.templates[rawTemplate] = &templateEntry{tmpl: tmpl, provider: provider, enabled: true}
	r.templateOrder = append(r.templateOrder, rawTemplate)
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// RemoveTemplate deletes a resource template.
func (r *ResourceRegistry) RemoveTemplate(rawTemplate string) error {
	r.mu.Lock()
	if _, exists := r.templates[rawTemplate]; !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "RemoveTemplate", internalerrors.ErrNotFound, ErrTemplateNotFound).
			WithContext("uri_template", rawTemplate)
	}
	delete(r.templates, rawTemplate)
	for i, t := range r.templateOrder {
		if t == rawTemplate {
			r.templateOrder = append(r.templateOrder[:i], r.templateOrder[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// SetTemplateEnabled toggles whether a resource template is visible to
// Read/ListTemplates without removing it.
func (r *ResourceRegistry) SetTemplateEnabled(rawTemplate string, enabled bool) error {
	r.mu.Lock()
	entry, exists := r.templates[rawTemplate]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "SetTemplateEnabled", internalerrors.ErrNotFound, ErrTemplateNotFound).
			WithContext("uri_template", rawTemplate)
	}
	changed := entry.enabled != enabled
	entry.enabled = enabled
	r.mu.Unlock()

	if changed {
		r.notifyListChanged()
	}
	return nil
}

// UpdateTemplate replaces the provider backing an already-registered
// template without changing its enabled state or registration order.
func (r *ResourceRegistry) UpdateTemplate(rawTemplate string, provider ResourceTemplateProvider) error {
	if provider == nil {
		return internalerrors.New("registry", "UpdateTemplate", internalerrors.ErrBadRequest, fmt.Errorf("template provider cannot be nil"))
	}

	r.mu.Lock()
	entry, exists := r.templates[rawTemplate]
	if !exists {
		r.mu.Unlock()
		return internalerrors.New("registry", "UpdateTemplate", internalerrors.ErrNotFound, ErrTemplateNotFound).
			WithContext("uri_template", rawTemplate)
	}
	entry.provider = provider
	r.mu.Unlock()

	r.notifyListChanged()
	return nil
}

// Read resolves uri against concrete resources first, then templates in
// registration order, and reads the matching provider's content.
func (r *ResourceRegistry) Read(ctx context.Context, uri string) (*Resource, error) {
	r.mu.RLock()
	if entry, exists := r.resources[uri]; exists && entry.enabled {
		provider := entry.provider
		r.mu.RUnlock()
		res, err := provider.Read(ctx, uri)
		if err != nil {
			return nil, internalerrors.New("registry", "Read", internalerrors.ErrInternal, err).
				WithContext("resource_uri", uri)
		}
		return res, nil
	}

	for _, key := range r.templateOrder {
		entry := r.templates[key]
		if !entry.enabled {
			continue
		}
		match := entry.tmpl.Match(uri)
		if match == nil {
			continue
		}
		vars := make(map[string]string, len(match))
		for name, val := range match {
			vars[name] = val.String()
		}
		provider := entry.provider
		r.mu.RUnlock()
		res, err := provider.Read(ctx, uri, vars)
		if err != nil {
			return nil, internalerrors.New("registry", "Read", internalerrors.ErrInternal, err).
				WithContext("resource_uri", uri)
		}
		return res, nil
	}
	r.mu.RUnlock()

	return nil, internalerrors.New("registry", "Read", internalerrors.ErrNotFound, ErrResourceNotFound).
		WithContext("resource_uri", uri)
}

// ListResources returns one page of enabled concrete resource definitions.
func (r *ResourceRegistry) ListResources(ctx context.Context, cursor string, pageSize int) ([]ResourceDefinition, string, error) {
	r.mu.RLock()
	uris := make([]string, 0, len(r.resources))
	for uri, entry := range r.resources {
		if entry.enabled {
			uris = append(uris, uri)
		}
	}
	r.mu.RUnlock()

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	page, next, err := paginate(uris, cursor, pageSize)
	if err != nil {
		return nil, "", internalerrors.New("registry", "ListResources", internalerrors.ErrBadRequest, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ResourceDefinition, 0, len(page))
	for _, uri := range page {
		if entry, ok := r.resources[uri]; ok {
			defs = append(defs, entry.provider.Definition())
		}
	}
	return defs, next, nil
}

// ListTemplates returns all enabled resource template definitions, in
// registration order.
func (r *ResourceRegistry) ListTemplates() []ResourceTemplateDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ResourceTemplateDefinition, 0, len(r.templateOrder))
	for _, key := range r.templateOrder {
		entry := r.templates[key]
		if entry.enabled {
			defs = append(defs, entry.provider.Definition())
		}
	}
	return defs
}

// Subscribe registers sessionID's interest in change notifications for uri.
func (r *ResourceRegistry) Subscribe(uri, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[uri] == nil {
		r.subs[uri] = make(map[string]struct{})
	}
	r.subs[uri][sessionID] = struct{}{}
}

// Unsubscribe removes sessionID's interest in uri.
func (r *ResourceRegistry) Unsubscribe(uri, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.subs[uri]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(r.subs, uri)
		}
	}
}

// UnsubscribeAll drops every subscription held by sessionID, e.g. on
// transport disconnect.
func (r *ResourceRegistry) UnsubscribeAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uri, subs := range r.subs {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(r.subs, uri)
		}
	}
}

// Subscribers returns the session IDs currently subscribed to uri.
func (r *ResourceRegistry) Subscribers(uri string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[uri]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// NotifyUpdated invokes the onUpdated callback for uri, used by a resource
// provider after it mutates content out from under a subscriber.
func (r *ResourceRegistry) NotifyUpdated(uri string) {
	if r.onUpdated != nil {
		r.onUpdated(uri)
	}
}

package registry

import "errors"

// Sentinel errors for registry operations. Wrap these with
// internalerrors.DomainError at the call site once context (name, URI) is known.
var (
	ErrToolAlreadyRegistered     = errors.New("tool already registered")
	ErrToolNotFound              = errors.New("tool not found")
	ErrResourceAlreadyRegistered = errors.New("resource already registered")
	ErrResourceNotFound          = errors.New("resource not found")
	ErrTemplateAlreadyRegistered = errors.New("resource template already registered")
	ErrTemplateNotFound          = errors.New("resource template not found")
	ErrPromptAlreadyRegistered   = errors.New("prompt already registered")
	ErrPromptNotFound            = errors.New("prompt not found")
	ErrNoTemplateMatch           = errors.New("no resource template matches uri")
	ErrInvalidCursor             = errors.New("invalid pagination cursor")
)

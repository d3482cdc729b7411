package mcpserver

import (
	"context"
	"encoding/json"

	internalerrors "github.com/jamesprial/mcpcore/internal/errors"
	"github.com/jamesprial/mcpcore/internal/jsonrpc"
	"github.com/jamesprial/mcpcore/internal/protocol"
	"github.com/jamesprial/mcpcore/internal/registry"
)

// registerHandlers installs every non-builtin MCP method on engine. initialize,
// notifications/initialized, and ping are registered by protocol.New itself.
func (s *Server) registerHandlers(engine *protocol.Engine, sessionID string) {
	engine.Register("tools/list", s.handleToolsList)
	engine.Register("tools/call", s.handleToolsCall)
	engine.Register("resources/list", s.handleResourcesList)
	engine.Register("resources/templates/list", s.handleResourceTemplatesList)
	engine.Register("resources/read", s.handleResourcesRead)
	engine.Register("resources/subscribe", s.subscribeHandler(sessionID))
	engine.Register("resources/unsubscribe", s.unsubscribeHandler(sessionID))
	engine.Register("prompts/list", s.handlePromptsList)
	engine.Register("prompts/get", s.handlePromptsGet)
}

type cursorParams struct {
	Cursor string `json:"cursor,omitempty"`
}

func decodeParams(raw json.RawMessage, v any) *jsonrpc.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid params", err.Error())
	}
	return nil
}

// registryError maps a registry/internalerrors failure to its JSON-RPC
// error code: not-found and bad-request registry failures are always a
// caller mistake (-32602); anything else is an internal error.
func registryError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}
	var kind error
	if de, ok := err.(*internalerrors.DomainError); ok {
		kind = de.Kind
	}
	switch kind {
	case internalerrors.ErrNotFound, internalerrors.ErrBadRequest:
		return jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error(), nil)
	default:
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "internal error", err.Error())
	}
}

type toolsListResult struct {
	Tools      []registry.ToolDefinition `json:"tools"`
	NextCursor string                    `json:"nextCursor,omitempty"`
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p cursorParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	defs, next, err := s.Tools.List(ctx, p.Cursor, 0)
	if err != nil {
		return nil, registryError(err)
	}
	return toolsListResult{Tools: defs, NextCursor: next}, nil
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p toolsCallParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	tool, err := s.Tools.Get(p.Name)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unknown or disabled tool", p.Name)
	}

	def := tool.Definition()
	if len(def.InputSchema) > 0 {
		if rpcErr := s.validateAgainstSchema(def.InputSchema, p.Arguments); rpcErr != nil {
			return nil, rpcErr
		}
	}

	result, err := tool.Execute(ctx, p.Arguments)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "tool execution failed", err.Error())
	}

	if len(def.OutputSchema) > 0 && result.StructuredContent != nil {
		if rpcErr := s.validateAgainstSchema(def.OutputSchema, result.StructuredContent); rpcErr != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "tool produced output violating its output schema", rpcErr.Message)
		}
	}
	return result, nil
}

func (s *Server) validateAgainstSchema(doc map[string]any, instance any) *jsonrpc.Error {
	compiled, err := s.Validator.Compile(doc)
	if err != nil {
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "invalid schema", err.Error())
	}
	// Round-trip instance through encoding/json so Go struct values (not
	// already map[string]any/float64/etc.) match the decoded-JSON shape the
	// validator expects.
	normalized, err := normalizeInstance(instance)
	if err != nil {
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "failed to normalize instance", err.Error())
	}
	if err := s.Validator.Validate(compiled, normalized); err != nil {
		return jsonrpc.NewError(jsonrpc.CodeInvalidParams, "arguments do not match schema", err.Error())
	}
	return nil
}

func normalizeInstance(instance any) (any, error) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type resourcesListResult struct {
	Resources  []registry.ResourceDefinition `json:"resources"`
	NextCursor string                        `json:"nextCursor,omitempty"`
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p cursorParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	defs, next, err := s.Resources.ListResources(ctx, p.Cursor, 0)
	if err != nil {
		return nil, registryError(err)
	}
	return resourcesListResult{Resources: defs, NextCursor: next}, nil
}

type resourceTemplatesListResult struct {
	ResourceTemplates []registry.ResourceTemplateDefinition `json:"resourceTemplates"`
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	return resourceTemplatesListResult{ResourceTemplates: s.Resources.ListTemplates()}, nil
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

type resourcesReadResult struct {
	Contents []*registry.Resource `json:"contents"`
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p resourcesReadParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.Resources.Read(ctx, p.URI)
	if err != nil {
		return nil, registryError(err)
	}
	return resourcesReadResult{Contents: []*registry.Resource{res}}, nil
}

type resourceSubscribeParams struct {
	URI string `json:"uri"`
}

func (s *Server) subscribeHandler(sessionID string) protocol.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p resourceSubscribeParams
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		s.Resources.Subscribe(p.URI, sessionID)
		return struct{}{}, nil
	}
}

func (s *Server) unsubscribeHandler(sessionID string) protocol.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p resourceSubscribeParams
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		s.Resources.Unsubscribe(p.URI, sessionID)
		return struct{}{}, nil
	}
}

type promptsListResult struct {
	Prompts    []registry.PromptDefinition `json:"prompts"`
	NextCursor string                      `json:"nextCursor,omitempty"`
}

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p cursorParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	defs, next, err := s.Prompts.List(ctx, p.Cursor, 0)
	if err != nil {
		return nil, registryError(err)
	}
	return promptsListResult{Prompts: defs, NextCursor: next}, nil
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var p promptsGetParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	prompt, err := s.Prompts.Get(p.Name)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unknown or disabled prompt", p.Name)
	}

	def := prompt.Definition()
	for _, arg := range def.Arguments {
		if arg.Required {
			if _, ok := p.Arguments[arg.Name]; !ok {
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "missing required argument", arg.Name)
			}
		}
	}

	result, err := prompt.Render(ctx, p.Arguments)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "prompt rendering failed", err.Error())
	}
	return result, nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
)

// ErrUnknownTool is returned by CallTool for a name that was never
// registered; the engine maps it to an invalid-params error.
var ErrUnknownTool = errors.New("unknown tool")

// ToolHandler executes one tool call. The returned value becomes the
// tool result: a *protocol.CallToolResult passes through, a string
// becomes one text block, anything else is JSON-encoded into a text
// block. A returned error becomes an isError result, not a JSON-RPC
// error.
type ToolHandler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Tool couples a tool's advertised metadata with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ToolsProvider supplies the tools the engine advertises and dispatches.
type ToolsProvider interface {
	// ListTools returns the advertised tool metadata.
	ListTools(ctx context.Context) ([]protocol.Tool, error)

	// CallTool executes the named tool. Unknown names return
	// ErrUnknownTool.
	CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error)
}

// BaseToolsProvider is a registry-backed ToolsProvider.
type BaseToolsProvider struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewBaseToolsProvider creates an empty provider.
func NewBaseToolsProvider() *BaseToolsProvider {
	return &BaseToolsProvider{tools: make(map[string]Tool)}
}

// RegisterTool adds or replaces a tool.
func (p *BaseToolsProvider) RegisterTool(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	p.mu.Lock()
	p.tools[tool.Name] = tool
	p.mu.Unlock()
	return nil
}

// ListTools implements ToolsProvider; tools are listed in name order.
func (p *BaseToolsProvider) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	p.mu.RLock()
	tools := make([]protocol.Tool, 0, len(p.tools))
	for _, tool := range p.tools {
		tools = append(tools, protocol.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	p.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// CallTool implements ToolsProvider.
func (p *BaseToolsProvider) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	p.mu.RLock()
	tool, ok := p.tools[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	value, err := tool.Handler(ctx, args)
	if err != nil {
		return &protocol.CallToolResult{
			Content: []protocol.Content{protocol.NewTextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return toCallToolResult(value)
}

// toCallToolResult normalizes a handler's return value.
func toCallToolResult(value interface{}) (*protocol.CallToolResult, error) {
	switch v := value.(type) {
	case *protocol.CallToolResult:
		return v, nil
	case protocol.CallToolResult:
		return &v, nil
	case string:
		return &protocol.CallToolResult{
			Content: []protocol.Content{protocol.NewTextContent(v)},
		}, nil
	case nil:
		return &protocol.CallToolResult{Content: []protocol.Content{}}, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding tool result: %w", err)
		}
		return &protocol.CallToolResult{
			Content: []protocol.Content{protocol.NewTextContent(string(encoded))},
		}, nil
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/transport"
)

// sender is the slice of the transport the engine needs to reply.
type sender interface {
	Send(ctx context.Context, msg json.RawMessage) error
}

// engine is the MCP method dispatcher behind the transport: it
// implements transport.MessageHandler, answers the lifecycle and tools
// methods, and routes every reply back through Send on the originating
// context.
type engine struct {
	name    string
	version string
	logger  logging.Logger
	tools   ToolsProvider
	sender  sender

	// inflight tracks cancel funcs for requests being handled, keyed by
	// request id, so notifications/cancelled can reach them.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func newEngine(name, version string, tools ToolsProvider, snd sender, logger logging.Logger) *engine {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &engine{
		name:     name,
		version:  version,
		logger:   logger,
		tools:    tools,
		sender:   snd,
		inflight: make(map[string]context.CancelFunc),
	}
}

func (e *engine) Start(ctx context.Context) error { return nil }

func (e *engine) Close() error {
	e.mu.Lock()
	for key, cancel := range e.inflight {
		cancel()
		delete(e.inflight, key)
	}
	e.mu.Unlock()
	return nil
}

// OnMessage implements transport.MessageHandler.
func (e *engine) OnMessage(ctx context.Context, raw json.RawMessage) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		e.logger.Warn("dropping unparseable message", logging.ErrorField(err))
		return
	}

	switch msg.Kind {
	case protocol.KindRequest:
		e.handleRequest(ctx, msg.Request)
	case protocol.KindNotification:
		e.handleNotification(ctx, msg.Notification)
	case protocol.KindResponse:
		e.logger.Debug("dropping client response",
			logging.String("request_id", protocol.IDKey(msg.Response.ID)))
	}
}

func (e *engine) handleRequest(ctx context.Context, req *protocol.Request) {
	key := protocol.IDKey(req.ID)
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.inflight[key] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
		cancel()
	}()

	resp := e.dispatch(ctx, req)
	if resp == nil {
		return
	}
	if ctx.Err() != nil {
		// Cancelled while handling; nobody expects the answer.
		e.logger.Debug("suppressing response for cancelled request",
			logging.String("request_id", key),
			logging.String("method", req.Method),
		)
		return
	}
	e.reply(ctx, resp)
}

// dispatch answers one request. Panics in tool handlers surface as
// internal errors rather than killing the dispatch goroutine.
func (e *engine) dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("request handler panicked",
				logging.String("method", req.Method),
				logging.Any("panic", rec),
			)
			resp = protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
		}
	}()

	switch req.Method {
	case protocol.MethodInitialize:
		return e.handleInitialize(ctx, req)
	case protocol.MethodPing:
		return e.result(req.ID, map[string]interface{}{})
	case protocol.MethodListTools:
		return e.handleListTools(ctx, req)
	case protocol.MethodCallTool:
		return e.handleCallTool(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.MethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (e *engine) handleInitialize(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.InvalidParams,
				"Invalid method parameters", nil)
		}
	}

	// The transport already negotiated the revision during session
	// setup; fall back to negotiating from params for bare dispatch.
	version := transport.ProtocolVersionFromContext(ctx)
	if version == "" {
		version = protocol.NegotiateProtocolVersion(params.ProtocolVersion)
	}

	result := protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities: protocol.ServerCapabilities{
			Tools: &protocol.ToolsCapability{},
		},
		ServerInfo: protocol.ServerInfo{Name: e.name, Version: e.version},
	}
	e.logger.Info("client initialized",
		logging.String("client", params.ClientInfo.Name),
		logging.String("protocol_version", version),
		logging.String("session_id", transport.SessionIDFromContext(ctx)),
	)
	return e.result(req.ID, result)
}

func (e *engine) handleListTools(ctx context.Context, req *protocol.Request) *protocol.Response {
	if e.tools == nil {
		return e.result(req.ID, protocol.ListToolsResult{Tools: []protocol.Tool{}})
	}
	tools, err := e.tools.ListTools(ctx)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
	}
	if tools == nil {
		tools = []protocol.Tool{}
	}
	return e.result(req.ID, protocol.ListToolsResult{Tools: tools})
}

func (e *engine) handleCallTool(ctx context.Context, req *protocol.Request) *protocol.Response {
	if e.tools == nil {
		return protocol.NewErrorResponse(req.ID, protocol.InvalidParams,
			"Invalid method parameters: no tools registered", nil)
	}

	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return protocol.NewErrorResponse(req.ID, protocol.InvalidParams,
			"Invalid method parameters: tool name is required", nil)
	}

	result, err := e.tools.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return protocol.NewErrorResponse(req.ID, protocol.InvalidParams,
				fmt.Sprintf("Invalid method parameters: unknown tool %q", params.Name), nil)
		}
		return protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
	}
	return e.result(req.ID, result)
}

func (e *engine) handleNotification(ctx context.Context, note *protocol.Notification) {
	switch note.Method {
	case protocol.NotificationInitialized:
		// The transport flips the session state; nothing to do here.
		e.logger.Debug("initialization complete",
			logging.String("session_id", transport.SessionIDFromContext(ctx)))
	case protocol.NotificationCancelled:
		var params protocol.CancelledParams
		if err := json.Unmarshal(note.Params, &params); err != nil {
			e.logger.Warn("malformed cancellation", logging.ErrorField(err))
			return
		}
		e.cancelRequest(params)
	default:
		e.logger.Debug("dropping unknown notification",
			logging.String("method", note.Method))
	}
}

func (e *engine) cancelRequest(params protocol.CancelledParams) {
	key := protocol.IDKey(params.RequestID)
	e.mu.Lock()
	cancel := e.inflight[key]
	e.mu.Unlock()

	if cancel == nil {
		e.logger.Debug("cancellation for unknown request",
			logging.String("request_id", key))
		return
	}
	cancel()
	e.logger.Debug("request cancelled",
		logging.String("request_id", key),
		logging.String("reason", params.Reason),
	)
}

func (e *engine) result(id interface{}, value interface{}) *protocol.Response {
	resp, err := protocol.NewResponse(id, value)
	if err != nil {
		return protocol.NewErrorResponse(id, protocol.InternalError, "Internal error", nil)
	}
	return resp
}

func (e *engine) reply(ctx context.Context, resp *protocol.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		e.logger.Error("encoding response failed", logging.ErrorField(err))
		return
	}
	if err := e.sender.Send(ctx, payload); err != nil {
		e.logger.Warn("sending response failed", logging.ErrorField(err))
	}
}

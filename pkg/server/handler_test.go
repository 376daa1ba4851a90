package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
)

// captureSender records every message the engine sends.
type captureSender struct {
	sent chan json.RawMessage
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan json.RawMessage, 16)}
}

func (c *captureSender) Send(ctx context.Context, msg json.RawMessage) error {
	c.sent <- msg
	return nil
}

func (c *captureSender) next(t *testing.T) *protocol.Response {
	t.Helper()
	select {
	case raw := <-c.sent:
		var resp protocol.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("decoding sent message %s: %v", raw, err)
		}
		return &resp
	case <-time.After(2 * time.Second):
		t.Fatal("engine never sent a response")
		return nil
	}
}

func (c *captureSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case raw := <-c.sent:
		t.Fatalf("engine sent unexpected message %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestEngine(tools ToolsProvider) (*engine, *captureSender) {
	snd := newCaptureSender()
	return newEngine("test-server", "1.2.3", tools, snd, nil), snd
}

func TestEngineInitialize(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`))

	resp := snd.next(t)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q, want the requested 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "test-server" || result.ServerInfo.Version != "1.2.3" {
		t.Errorf("serverInfo = %+v, want test-server/1.2.3", result.ServerInfo)
	}
	if result.Capabilities.Tools == nil {
		t.Error("capabilities.tools missing")
	}
}

func TestEngineInitializeUnknownVersionNegotiatesLatest(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2099-01-01"}}`))

	resp := snd.next(t)
	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.ProtocolVersion != protocol.LatestProtocolVersion {
		t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, protocol.LatestProtocolVersion)
	}
}

func TestEnginePing(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))

	resp := snd.next(t)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.Result) != "{}" {
		t.Errorf("result = %s, want {}", resp.Result)
	}
}

func TestEngineMethodNotFound(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`))

	resp := snd.next(t)
	if resp.Error == nil || resp.Error.Code != protocol.MethodNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.MethodNotFound)
	}
}

func TestEngineListTools(t *testing.T) {
	tools := NewBaseToolsProvider()
	_ = tools.RegisterTool(Tool{
		Name:        "echo",
		Description: "Echoes its arguments",
		Handler:     func(ctx context.Context, args json.RawMessage) (interface{}, error) { return string(args), nil },
	})
	e, snd := newTestEngine(tools)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))

	resp := snd.next(t)
	var result protocol.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "echo" {
		t.Errorf("tools = %+v, want [echo]", result.Tools)
	}
}

func TestEngineListToolsEmpty(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))

	resp := snd.next(t)
	if string(resp.Result) != `{"tools":[]}` {
		t.Errorf("result = %s, want an empty tools array, not null", resp.Result)
	}
}

func TestEngineCallTool(t *testing.T) {
	tools := NewBaseToolsProvider()
	_ = tools.RegisterTool(Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, err
			}
			return params.Text, nil
		},
	})
	e, snd := newTestEngine(tools)

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`))

	resp := snd.next(t)
	var result protocol.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.IsError {
		t.Error("IsError = true, want false")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Errorf("content = %+v, want one text block %q", result.Content, "hi")
	}
}

func TestEngineCallToolUnknown(t *testing.T) {
	e, snd := newTestEngine(NewBaseToolsProvider())

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"missing"}}`))

	resp := snd.next(t)
	if resp.Error == nil || resp.Error.Code != protocol.InvalidParams {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.InvalidParams)
	}
}

func TestEngineCallToolMissingName(t *testing.T) {
	e, snd := newTestEngine(NewBaseToolsProvider())

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{}}`))

	resp := snd.next(t)
	if resp.Error == nil || resp.Error.Code != protocol.InvalidParams {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.InvalidParams)
	}
}

func TestEngineCallToolPanic(t *testing.T) {
	tools := NewBaseToolsProvider()
	_ = tools.RegisterTool(Tool{
		Name: "exploding",
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			panic("boom")
		},
	})
	e, snd := newTestEngine(tools)

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"exploding"}}`))

	resp := snd.next(t)
	if resp.Error == nil || resp.Error.Code != protocol.InternalError {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.InternalError)
	}
	if got := fmt.Sprintf("%v", resp.ID); got != "7" {
		t.Errorf("id = %v, want 7", resp.ID)
	}
}

func TestEngineCancellation(t *testing.T) {
	started := make(chan struct{})
	tools := NewBaseToolsProvider()
	_ = tools.RegisterTool(Tool{
		Name: "slow",
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	e, snd := newTestEngine(tools)

	go e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"slow"}}`))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never started")
	}

	e.OnMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":8,"reason":"user"}}`))

	// A cancelled request gets no response.
	snd.expectNone(t)
}

func TestEngineDropsClientResponses(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":9,"result":{}}`))
	snd.expectNone(t)
}

func TestEngineInitializedNotificationIsNoop(t *testing.T) {
	e, snd := newTestEngine(nil)

	e.OnMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	snd.expectNone(t)
}

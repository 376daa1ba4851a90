// Package transport implements the server side of the MCP Streamable
// HTTP transport.
//
// One HTTP endpoint carries the whole protocol: POST delivers JSON-RPC
// 2.0 messages from the client, GET opens a server-to-client SSE
// stream, DELETE terminates the session. Requests are answered either
// as a single JSON body or as the final event of a per-request SSE
// stream, depending on Config.EnableJSONResponse.
//
// Two session modes are supported. Stateless mode synthesizes a
// throwaway session per request and suits serverless deployments.
// Stateful mode assigns an Mcp-Session-Id on initialize, keeps the
// session alive across requests with an idle TTL, and supports GET
// notification streams with Last-Event-ID resumability.
//
//	cfg := transport.DefaultConfig()
//	cfg.Stateful = true
//	t, err := transport.NewStreamableHTTPTransport(cfg)
//	if err != nil {
//	    return err
//	}
//	t.SetHandler(engine)
//	if err := t.Start(ctx); err != nil {
//	    return err
//	}
//	http.Handle("/mcp", t)
//
// The handler consumes inbound messages through the MessageHandler
// interface and replies through Send, passing the context the message
// arrived with so responses reach the waiting request.
package transport

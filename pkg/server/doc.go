// Package server assembles a runnable MCP server on the Streamable
// HTTP transport: an engine dispatching the lifecycle and tools
// methods, a tool registry, and a facade wiring transport, routing,
// authentication, and observability together.
//
//	srv, err := server.New(
//	    server.WithName("echo-server"),
//	    server.WithTool("echo", "Echoes its input", schema, echoHandler),
//	    server.WithAddr(":8080"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

// Package remote runs pipelines on behalf of out-of-process clients.
//
// A Server accepts websocket connections on a configured path and port. Each
// connection is a session: it gets its own client id and its own execution tools,
// built by the embedder's ToolsFactory, so credentials and quotas never cross
// sessions. Clients send events.Execute and events.Cancel; the server streams
// events.Progress for every finished template and ends each request with an
// events.Report or an events.Error.
//
// The server does not authenticate. Embedders check tokens in the OnConnect hook.
//
//	srv := remote.NewServer(func(ctx context.Context, clientID uuid.UUID) (provider.ExecutionTools, error) {
//	    return provider.Join(openai.New(openai.WithAPIKey(key))), nil
//	}, remote.WithPort(4460))
//	err := srv.ListenAndServe(ctx)
//
// Client is the matching caller:
//
//	c, err := remote.Dial(ctx, "ws://localhost:4460/folio")
//	res, err := c.Execute(ctx, events.Execute{Book: text, Parameters: params}, nil)
package remote

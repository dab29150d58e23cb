package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/casualjim/folio/internal/broker"
	"github.com/casualjim/folio/pkg/natsx"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/remote"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errInvalidToken = errors.New("missing or invalid bearer token")

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipeline execution over websockets",
		Long: `Start a remote execution server. Every websocket session gets its own
execution tools built from the configured providers. Session events go through
NATS when nats.url is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := slogx.Component("serve")

			if len(a.cfg.Providers) == 0 {
				return errors.New("no providers configured, add one to " + configName(a.configPath))
			}
			preparer, closeStorage, err := a.openPreparer(nil)
			if err != nil {
				return err
			}
			defer closeStorage()

			options := append(a.cfg.ServerOptions(), remote.WithPreparer(preparer))
			if cmd.Flags().Changed("port") {
				options = append(options, remote.WithPort(port))
			}
			if token := a.cfg.Server.Token; token != "" {
				options = append(options, remote.WithOnConnect(bearerAuth(token)))
			}
			if url := a.cfg.NATS.URL; url != "" {
				nc, err := natsx.NewClient(url)
				if err != nil {
					return err
				}
				defer func() { _ = nc.Drain() }()
				log.InfoContext(ctx, "using nats session broker", slog.String("url", nc.ConnectedUrlRedacted()))
				options = append(options, remote.WithBroker(broker.NATS(nc)))
			}

			srv := remote.NewServer(func(context.Context, uuid.UUID) (provider.ExecutionTools, error) {
				return a.cfg.Tools()
			}, options...)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", remote.DefaultPort, "listen port, overrides server.port")
	return cmd
}

// bearerAuth accepts requests carrying token as an Authorization bearer token.
func bearerAuth(token string) func(*http.Request) error {
	return func(r *http.Request) error {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return errInvalidToken
		}
		return nil
	}
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/internal/broker"
	"github.com/casualjim/folio/internal/registry"
	"github.com/casualjim/folio/knowledge"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/provider"
	"github.com/fogfish/opts"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultPath              = "/folio"
	DefaultPort              = 4460
	DefaultInactivityTimeout = 5 * time.Minute
	DefaultWriteTimeout      = 10 * time.Second
	// MaxMessageBytes bounds a single client message.
	MaxMessageBytes = 4 << 20
)

// ErrClientDisconnected is the cancellation cause of runs whose client went away.
var ErrClientDisconnected = errors.New("client disconnected")

// ErrCancelledByClient is the cancellation cause of runs stopped by a cancel message.
var ErrCancelledByClient = errors.New("cancelled by client")

// ToolsFactory builds the execution tools of one client session.
type ToolsFactory func(ctx context.Context, clientID uuid.UUID) (provider.ExecutionTools, error)

// Option configures a Server.
type Option = opts.Option[Server]

// Server exposes the pipeline executor over websocket sessions.
type Server struct {
	host              string
	port              int
	path              string
	createTools       ToolsFactory
	onConnect         func(*http.Request) error
	inactivityTimeout time.Duration
	writeTimeout      time.Duration
	maxParallel       int
	rateLimit         rate.Limit
	rateBurst         int
	preparer          *knowledge.Preparer
	broker            broker.Broker
	registry          *prometheus.Registry
	logger            *slog.Logger

	metrics     *metrics
	callMetrics *provider.Metrics
	sessions    registry.Registry[*session]
	upgrader    websocket.Upgrader
	engine      *gin.Engine
}

var (
	WithHost              = opts.ForName[Server, string]("host")
	WithPort              = opts.ForName[Server, int]("port")
	WithPath              = opts.ForName[Server, string]("path")
	WithInactivityTimeout = opts.ForName[Server, time.Duration]("inactivityTimeout")
	WithWriteTimeout      = opts.ForName[Server, time.Duration]("writeTimeout")
	WithMaxParallel       = opts.ForName[Server, int]("maxParallel")
	WithPreparer          = opts.ForName[Server, *knowledge.Preparer]("preparer")
	WithBroker            = opts.ForName[Server, broker.Broker]("broker")
	WithRegistry          = opts.ForName[Server, *prometheus.Registry]("registry")
	WithLogger            = opts.ForName[Server, *slog.Logger]("logger")
)

// WithOnConnect sets the accept hook. A non-nil error rejects the connection with
// 401 Unauthorized before the upgrade.
func WithOnConnect(fn func(*http.Request) error) opts.Option[Server] {
	return opts.Type[Server](func(s *Server) error {
		s.onConnect = fn
		return nil
	})
}

// WithRateLimit throttles the model calls of every session to limit calls per
// second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) opts.Option[Server] {
	return opts.Type[Server](func(s *Server) error {
		if burst < 1 {
			return fmt.Errorf("rate limit burst must be positive, got %d", burst)
		}
		s.rateLimit = limit
		s.rateBurst = burst
		return nil
	})
}

// NewServer creates a server building the tools of each session with createTools.
func NewServer(createTools ToolsFactory, options ...opts.Option[Server]) *Server {
	s := &Server{
		port:              DefaultPort,
		path:              DefaultPath,
		createTools:       createTools,
		inactivityTimeout: DefaultInactivityTimeout,
		writeTimeout:      DefaultWriteTimeout,
		maxParallel:       executor.DefaultMaxParallel,
		logger:            slogx.Component("remote"),
		sessions:          registry.New[*session](),
	}
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	if s.createTools == nil {
		panic("remote: a tools factory is required")
	}
	if s.inactivityTimeout <= 0 {
		s.inactivityTimeout = DefaultInactivityTimeout
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	if s.broker == nil {
		s.broker = broker.Local().WithSlowSubscriberTimeout(s.writeTimeout)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.preparer == nil {
		s.preparer = knowledge.NewPreparer()
	}
	s.metrics = newMetrics(s.registry)
	s.callMetrics = provider.NewMetrics(s.registry)
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))
	r.GET(s.path, s.handleSession)
	return r
}

// Handler returns the HTTP handler serving the session endpoint, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the listen address of the server.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	return s.sessions.Len()
}

// ListenAndServe serves until ctx ends, then closes every session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", slog.String("addr", srv.Addr), slog.String("path", s.path))
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close ends every open session, cancelling their runs.
func (s *Server) Close() {
	s.sessions.Range(func(_ string, sess *session) bool {
		sess.close()
		return true
	})
}

func (s *Server) handleSession(c *gin.Context) {
	if s.onConnect != nil {
		if err := s.onConnect(c.Request); err != nil {
			s.logger.InfoContext(c, "connection rejected", slogx.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnContext(c, "failed to upgrade the websocket", slogx.Error(err))
		return
	}

	sess, err := s.newSession(conn)
	if err != nil {
		s.logger.ErrorContext(c, "failed to start session", slogx.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(s.writeTimeout))
		_ = conn.Close()
		return
	}

	s.sessions.Add(sess.id.String(), sess)
	s.metrics.sessions.Inc()
	defer func() {
		s.sessions.Del(sess.id.String())
		s.metrics.sessions.Dec()
	}()

	sess.serve()
}

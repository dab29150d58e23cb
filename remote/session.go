package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/folio/events"
	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/internal/broker"
	"github.com/casualjim/folio/internal/registry"
	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/casualjim/folio/prepare"
	"github.com/casualjim/folio/provider"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type session struct {
	*Server

	id     uuid.UUID
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelCauseFunc
	tools  provider.ExecutionTools
	topic  broker.Topic
	sub    broker.Subscription
	runs   registry.Registry[context.CancelCauseFunc]
	usage  *runstate.Aggregator
	log    *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *Server) newSession(conn *websocket.Conn) (*session, error) {
	id := uuidx.New()
	ctx, cancel := context.WithCancelCause(context.Background())
	sess := &session{
		Server: s,
		id:     id,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		runs:   registry.New[context.CancelCauseFunc](),
		usage:  runstate.NewAggregator(),
		log:    s.logger.With(slog.String("client_id", id.String())),
	}

	tools, err := s.createTools(ctx, id)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("failed to create execution tools: %w", err)
	}
	if mt, ok := tools.(*provider.MultiTools); ok {
		mt.WithMetrics(s.callMetrics)
	}
	if s.rateBurst > 0 {
		tools = provider.Limit(tools, rate.NewLimiter(s.rateLimit, s.rateBurst))
	}
	sess.tools = tools

	sess.topic = s.broker.Topic(ctx, broker.SessionTopic(id))
	sub, err := sess.topic.Subscribe(ctx, &socketWriter{session: sess})
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	sess.sub = sub

	if err := sess.publish(events.Session{ClientID: id, Timestamp: now()}); err != nil {
		sess.close()
		return nil, err
	}
	return sess, nil
}

func now() strfmt.DateTime {
	return strfmt.DateTime(time.Now().UTC())
}

// serve reads client messages until the client disconnects or stays inactive
// for the inactivity timeout. Pings keep the connection alive while runs are in flight.
func (s *session) serve() {
	defer s.close()
	s.log.InfoContext(s.ctx, "session started")

	s.conn.SetReadLimit(MaxMessageBytes)
	extend := func() error {
		return s.conn.SetReadDeadline(time.Now().Add(s.inactivityTimeout))
	}
	_ = extend()
	s.conn.SetPongHandler(func(string) error { return extend() })
	go s.keepAlive()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				s.log.InfoContext(s.ctx, "closing inactive session")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.log.InfoContext(s.ctx, "client disconnected")
			default:
				s.log.DebugContext(s.ctx, "session read failed", slogx.Error(err))
			}
			return
		}
		_ = extend()
		s.handle(data)
	}
}

func (s *session) keepAlive() {
	ticker := time.NewTicker(s.inactivityTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.runs.Len() == 0 {
				continue
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.log.DebugContext(s.ctx, "ping failed", slogx.Error(err))
				return
			}
		}
	}
}

func (s *session) handle(data []byte) {
	ev, err := events.FromJSON(data)
	if err != nil {
		s.fail(uuid.Nil, fmt.Errorf("invalid message: %w", err))
		return
	}

	switch ev := ev.(type) {
	case events.Execute:
		s.execute(ev)
	case events.Cancel:
		cancel, ok := s.runs.Get(ev.RequestID.String())
		if !ok {
			s.fail(ev.RequestID, fmt.Errorf("no running request %s", ev.RequestID))
			return
		}
		s.log.InfoContext(s.ctx, "cancelling request", slog.String("request_id", ev.RequestID.String()))
		cancel(ErrCancelledByClient)
	default:
		s.fail(uuid.Nil, fmt.Errorf("unexpected %s message from client", ev.Type()))
	}
}

func (s *session) execute(req events.Execute) {
	if s.ctx.Err() != nil {
		return
	}
	if req.RequestID == uuid.Nil {
		s.fail(uuid.Nil, errors.New("execute requires a request_id"))
		return
	}
	doc, err := req.Document()
	if err != nil {
		s.metrics.requests.WithLabelValues("invalid").Inc()
		s.fail(req.RequestID, err)
		return
	}

	key := req.RequestID.String()
	ctx, cancel := context.WithCancelCause(s.ctx)
	if _, exists := s.runs.GetOrAdd(key, func() context.CancelCauseFunc { return cancel }); exists {
		cancel(nil)
		s.fail(req.RequestID, fmt.Errorf("request %s is already running", req.RequestID))
		return
	}

	log := s.log.With(slog.String("request_id", key))
	exec := executor.New(s.tools,
		executor.WithMaxParallel(s.maxParallel),
		executor.WithLogger(log),
		executor.WithProgress(func(p executor.Progress) {
			if err := s.publish(events.Progress{RequestID: req.RequestID, Progress: p, Timestamp: now()}); err != nil {
				log.WarnContext(ctx, "failed to publish progress", slogx.Error(err))
			}
		}),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.runs.Del(key)
		defer cancel(nil)

		started := time.Now()
		log.InfoContext(ctx, "executing pipeline", slog.String("title", doc.Title))
		result := exec.Execute(ctx, doc, req.Parameters, prepare.Options{Preparer: s.preparer})
		s.usage.Add(result.Usage)
		select {
		case <-result.ProgressDone():
		case <-s.ctx.Done():
		}

		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		if context.Cause(ctx) != nil {
			outcome = "cancelled"
		}
		s.metrics.requests.WithLabelValues(outcome).Inc()
		s.metrics.duration.Observe(time.Since(started).Seconds())

		if err := s.publish(events.Report{RequestID: req.RequestID, Result: result, Timestamp: now()}); err != nil {
			log.WarnContext(ctx, "failed to publish report", slogx.Error(err))
		}
	}()
}

func (s *session) fail(requestID uuid.UUID, err error) {
	s.log.DebugContext(s.ctx, "request failed", slog.String("request_id", requestID.String()), slogx.Error(err))
	if perr := s.publish(events.Error{RequestID: requestID, Err: err, Timestamp: now()}); perr != nil {
		s.log.WarnContext(s.ctx, "failed to publish error", slogx.Error(perr))
	}
}

func (s *session) publish(ev events.Event) error {
	return s.topic.Publish(s.ctx, ev)
}

// close cancels the runs of the session, waits for them and releases the connection.
func (s *session) close() {
	s.once.Do(func() {
		s.cancel(ErrClientDisconnected)
		s.wg.Wait()
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		_ = s.conn.Close()
		usage := s.usage.Usage()
		s.log.Info("session closed",
			slog.Float64("price", usage.Price.Value),
			slog.Int64("output_tokens", usage.Output.Tokens),
		)
	})
}

// socketWriter forwards session events to the websocket. The broker calls it from
// a single goroutine per subscription, so it is the only writer of data frames.
type socketWriter struct {
	*session
}

func (w *socketWriter) write(ev events.Event) {
	data, err := events.ToJSON(ev)
	if err != nil {
		w.log.Error("failed to encode event", slog.String("type", string(ev.Type())), slogx.Error(err))
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.log.Debug("failed to write event", slog.String("type", string(ev.Type())), slogx.Error(err))
	}
}

func (w *socketWriter) OnSession(_ context.Context, e events.Session)   { w.write(e) }
func (w *socketWriter) OnProgress(_ context.Context, e events.Progress) { w.write(e) }
func (w *socketWriter) OnReport(_ context.Context, e events.Report)     { w.write(e) }
func (w *socketWriter) OnError(_ context.Context, e events.Error)       { w.write(e) }

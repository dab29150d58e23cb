package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/casualjim/folio/events"
	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/internal/registry"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by calls pending when the connection ends.
var ErrConnectionClosed = errors.New("connection closed")

// Client runs pipelines on a remote Server over one websocket session.
type Client struct {
	conn     *websocket.Conn
	clientID uuid.UUID
	calls    registry.Registry[*call]
	log      *slog.Logger

	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

type call struct {
	onProgress func(executor.Progress)
	result     chan *executor.Result
	err        chan error
}

// Dial connects to the session endpoint at url and waits for the session event.
// header is sent with the upgrade request, typically carrying credentials checked
// by the server's OnConnect hook.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	ev, err := events.FromJSON(data)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	sess, ok := ev.(events.Session)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("expected a session event, got %s", ev.Type())
	}

	c := &Client{
		conn:     conn,
		clientID: sess.ClientID,
		calls:    registry.New[*call](),
		log:      slogx.Component("remote.client").With(slog.String("client_id", sess.ClientID.String())),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID returns the client id the server assigned to this session.
func (c *Client) ID() uuid.UUID {
	return c.clientID
}

// Execute sends req and waits for its report. onProgress, when set, is called
// for every completed template. Cancelling ctx asks the server to stop the run;
// the partial report is still returned.
func (c *Client) Execute(ctx context.Context, req events.Execute, onProgress func(executor.Progress)) (*executor.Result, error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuidx.New()
	}
	key := req.RequestID.String()
	cl := &call{
		onProgress: onProgress,
		result:     make(chan *executor.Result, 1),
		err:        make(chan error, 1),
	}
	if _, exists := c.calls.GetOrAdd(key, func() *call { return cl }); exists {
		return nil, fmt.Errorf("request %s is already pending", req.RequestID)
	}
	defer c.calls.Del(key)

	if err := c.send(req); err != nil {
		return nil, err
	}

	cancelled := ctx.Done()
	for {
		select {
		case res := <-cl.result:
			return res, nil
		case err := <-cl.err:
			select {
			case res := <-cl.result:
				return res, nil
			default:
			}
			return nil, err
		case <-c.done:
			return nil, c.err
		case <-cancelled:
			cancelled = nil
			if err := c.send(events.Cancel{RequestID: req.RequestID}); err != nil {
				return nil, errors.Join(context.Cause(ctx), err)
			}
		}
	}
}

// Close ends the session. Pending calls fail with ErrConnectionClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(DefaultWriteTimeout))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(ev events.Event) error {
	data, err := events.ToJSON(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", ev.Type(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
			return
		}
		ev, err := events.FromJSON(data)
		if err != nil {
			c.log.Warn("ignoring invalid event", slogx.Error(err))
			continue
		}
		events.Dispatch(context.Background(), c, ev)
	}
}

func (c *Client) OnSession(context.Context, events.Session) {}

func (c *Client) OnProgress(_ context.Context, p events.Progress) {
	if cl, ok := c.calls.Get(p.RequestID.String()); ok && cl.onProgress != nil {
		cl.onProgress(p.Progress)
	}
}

func (c *Client) OnReport(_ context.Context, r events.Report) {
	if cl, ok := c.calls.Get(r.RequestID.String()); ok {
		select {
		case cl.result <- r.Result:
		default:
		}
	}
}

func (c *Client) OnError(_ context.Context, e events.Error) {
	if cl, ok := c.calls.Get(e.RequestID.String()); ok {
		select {
		case cl.err <- e:
		default:
		}
		return
	}
	c.log.Warn("server error", slog.String("request_id", e.RequestID.String()), slogx.Error(e.Err))
}

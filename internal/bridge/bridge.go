// Package bridge connects the browser host to the restore manager over a
// WebSocket. The host streams tab notifications in and executes tab commands
// sent back by the daemon.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/loykin/lazyrestore/internal/manager"
	"github.com/loykin/lazyrestore/internal/tab"
)

// ErrNoHost is returned by Controller calls while no host is connected.
var ErrNoHost = errors.New("no host connected")

// Router receives host notifications. *manager.Manager implements it.
type Router interface {
	Register(ctx context.Context, id tab.ID, req manager.RegisterRequest) error
	TabUpdated(ctx context.Context, id tab.ID, change tab.ChangeInfo, snap tab.Snapshot) error
	TabActivated(ctx context.Context, id tab.ID) error
	TabRemoved(ctx context.Context, id tab.ID) error
}

const inboxSize = 64

// Bridge is both the WebSocket endpoint for the host and the tab.Controller
// used by the manager. Only one host is served at a time; a new connection
// replaces the previous one.
type Bridge struct {
	allowOrigins []string
	log          *slog.Logger

	mu      sync.Mutex
	router  Router
	host    *hostConn
	pending map[string]pendingCall
}

// pendingCall is a command awaiting its result from the host it was sent to.
type pendingCall struct {
	host  *hostConn
	reply chan Message
}

type hostConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (h *hostConn) write(ctx context.Context, v any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return wsjson.Write(ctx, h.conn, v)
}

// New creates a Bridge. allowOrigins is passed to websocket.Accept as
// OriginPatterns; same-origin requests are always accepted.
func New(allowOrigins []string, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		allowOrigins: allowOrigins,
		log:          log.With("component", "bridge"),
		pending:      make(map[string]pendingCall),
	}
}

// SetRouter sets the destination of host notifications.
func (b *Bridge) SetRouter(r Router) {
	b.mu.Lock()
	b.router = r
	b.mu.Unlock()
}

// Connected reports whether a host is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host != nil
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.allowOrigins,
	})
	if err != nil {
		b.log.Warn("host websocket accept failed", "error", err)
		return
	}
	h := &hostConn{conn: conn}

	b.mu.Lock()
	prev := b.host
	b.host = h
	if prev != nil {
		b.failPendingLocked(prev)
	}
	b.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close(websocket.StatusPolicyViolation, "replaced by new host")
	}
	b.log.Info("host connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	inbox := make(chan Message, inboxSize)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for msg := range inbox {
			b.forward(ctx, msg)
		}
	}()

	defer func() {
		b.detach(h)
		close(inbox)
		<-forwarded
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		b.log.Info("host disconnected", "remote", r.RemoteAddr)
	}()

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				b.log.Warn("host read failed", "error", err)
			}
			return
		}
		switch msg.Type {
		case TypeResult:
			b.deliver(msg)
		case TypeEvent, TypeRegister:
			select {
			case inbox <- msg:
			case <-ctx.Done():
				return
			}
		default:
			b.log.Warn("unknown host message", "type", msg.Type)
		}
	}
}

// Close disconnects the current host, if any. Hijacked WebSocket
// connections are not closed by http.Server.Shutdown.
func (b *Bridge) Close() {
	b.mu.Lock()
	h := b.host
	b.mu.Unlock()
	if h != nil {
		_ = h.conn.Close(websocket.StatusGoingAway, "daemon shutting down")
	}
}

// forward runs on a per-connection goroutine so the read loop keeps
// delivering command results while the router is busy.
func (b *Bridge) forward(ctx context.Context, msg Message) {
	b.mu.Lock()
	r := b.router
	b.mu.Unlock()
	if r == nil {
		b.log.Warn("dropping host message, no router", "type", msg.Type, "tab_id", msg.TabID)
		return
	}

	var err error
	switch msg.Type {
	case TypeRegister:
		err = r.Register(ctx, msg.TabID, manager.RegisterRequest{TargetURL: msg.TargetURL})
	case TypeEvent:
		switch msg.Event {
		case EventUpdated:
			var change tab.ChangeInfo
			var snap tab.Snapshot
			if msg.Change != nil {
				change = *msg.Change
			}
			if msg.Tab != nil {
				snap = *msg.Tab
			}
			err = r.TabUpdated(ctx, msg.TabID, change, snap)
		case EventActivated:
			err = r.TabActivated(ctx, msg.TabID)
		case EventRemoved:
			err = r.TabRemoved(ctx, msg.TabID)
		default:
			err = fmt.Errorf("unknown event %q", msg.Event)
		}
	}
	if err != nil {
		b.log.Warn("host message rejected", "type", msg.Type, "event", msg.Event, "tab_id", msg.TabID, "error", err)
	}
}

func (b *Bridge) deliver(msg Message) {
	b.mu.Lock()
	pc, ok := b.pending[msg.ID]
	delete(b.pending, msg.ID)
	b.mu.Unlock()
	if !ok {
		b.log.Debug("result for unknown command", "id", msg.ID)
		return
	}
	pc.reply <- msg
}

// detach clears h as the current host and fails its in-flight commands.
func (b *Bridge) detach(h *hostConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == h {
		b.host = nil
	}
	b.failPendingLocked(h)
}

// failPendingLocked fails every command sent to h. b.mu must be held.
// Replies are buffered and sent once, so this never blocks.
func (b *Bridge) failPendingLocked(h *hostConn) {
	for id, pc := range b.pending {
		if pc.host != h {
			continue
		}
		pc.reply <- Message{Type: TypeResult, ID: id, Error: ErrNoHost.Error()}
		delete(b.pending, id)
	}
}

// call sends a command to the host and waits for its result.
func (b *Bridge) call(ctx context.Context, op string, id tab.ID, url string) (Message, error) {
	cmd := Message{Type: TypeCommand, ID: uuid.NewString(), Op: op, TabID: id, URL: url}
	reply := make(chan Message, 1)

	b.mu.Lock()
	h := b.host
	if h == nil {
		b.mu.Unlock()
		return Message{}, ErrNoHost
	}
	b.pending[cmd.ID] = pendingCall{host: h, reply: reply}
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.pending, cmd.ID)
		b.mu.Unlock()
	}

	if err := h.write(ctx, cmd); err != nil {
		cleanup()
		return Message{}, fmt.Errorf("send %s command: %w", op, err)
	}

	select {
	case res := <-reply:
		return res, resultErr(res)
	case <-ctx.Done():
		cleanup()
		return Message{}, fmt.Errorf("%s tab %d: %w", op, id, ctx.Err())
	}
}

func resultErr(res Message) error {
	switch {
	case res.Gone:
		return tab.ErrTabGone
	case res.Error == ErrNoHost.Error():
		return ErrNoHost
	case res.Error != "":
		return errors.New(res.Error)
	default:
		return nil
	}
}

func (b *Bridge) Get(ctx context.Context, id tab.ID) (tab.Snapshot, error) {
	res, err := b.call(ctx, OpGet, id, "")
	if err != nil {
		return tab.Snapshot{}, err
	}
	if res.Tab == nil {
		return tab.Snapshot{}, nil
	}
	return *res.Tab, nil
}

func (b *Bridge) Update(ctx context.Context, id tab.ID, url string) error {
	_, err := b.call(ctx, OpUpdate, id, url)
	return err
}

func (b *Bridge) Discard(ctx context.Context, id tab.ID) error {
	_, err := b.call(ctx, OpDiscard, id, "")
	return err
}

var _ tab.Controller = (*Bridge)(nil)

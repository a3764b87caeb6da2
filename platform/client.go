// Package platform is the websocket connection to the room server. Client
// implements space.Platform and delivers pushed room events on a channel.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicebartender/roombot/space"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	maxMsgSize     = 1 << 20 // 1MB
	keepaliveEvery = 15 * time.Second
	minBackoff     = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrRejected is returned when the room answers a request with an error
// that is neither transient nor about a missing user.
var ErrRejected = errors.New("request rejected")

var errSessionClosed = errors.New("session closed")

type Config struct {
	URL    string
	RoomID string
	Token  string
	// RequestTimeout applies when the caller's context has no deadline.
	RequestTimeout time.Duration
}

type reply struct {
	frame
	raw []byte
}

type Client struct {
	cfg    Config
	nextID atomic.Int64

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{} // closed when the current session's readLoop exits
	userID string

	writeMu sync.Mutex

	pending   map[string]chan reply
	pendingMu sync.Mutex

	events chan Event
}

func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		pending: make(map[string]chan reply),
		events:  make(chan Event, 256),
	}
}

// Events is closed when Run returns.
func (c *Client) Events() <-chan Event { return c.events }

// UserID is the bot's own id, known once a session has started.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func wsURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return raw
	}
	return "wss://" + raw
}

// Connect opens one session. Use Run to stay connected.
func (c *Client) Connect(ctx context.Context) error {
	url := wsURL(c.cfg.URL)
	header := http.Header{}
	header.Set("room-id", c.cfg.RoomID)
	header.Set("api-token", c.cfg.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMsgSize)

	done := make(chan struct{})
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	slog.Info("platform: connected", "url", url, "room", c.cfg.RoomID)
	return nil
}

// Close drops the current session and waits for its reader to stop.
func (c *Client) Close() {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Close()
	<-done
}

// Run keeps a session open until ctx ends, reconnecting with capped
// exponential backoff, and sends a keepalive every 15 seconds.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	defer c.Close()

	backoff := minBackoff
	for {
		err := c.Connect(ctx)
		if err == nil {
			backoff = minBackoff
			err = c.serve(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("platform: disconnected, retrying", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) serve(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return errSessionClosed
		case <-ticker.C:
			if err := c.send(ctx, keepaliveRequest{}, nil); err != nil {
				slog.Warn("platform: keepalive failed", "err", err)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		close(done)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("platform: readLoop ended", "err", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			slog.Warn("platform: bad frame", "err", err)
			continue
		}

		// Response to a pending request?
		if f.RID != "" {
			c.pendingMu.Lock()
			ch, ok := c.pending[f.RID]
			if ok {
				delete(c.pending, f.RID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- reply{frame: f, raw: message}
			}
			continue
		}

		evt, err := decodeEvent(f.Type, message)
		if err != nil {
			slog.Warn("platform: bad event", "type", f.Type, "err", err)
			continue
		}
		if evt == nil {
			continue
		}
		if s, ok := evt.(SessionMetadata); ok {
			c.mu.Lock()
			c.userID = s.UserID
			c.mu.Unlock()
		}
		select {
		case c.events <- evt:
		default:
			slog.Warn("platform: event buffer full, dropping", "type", f.Type)
		}
	}
}

// send writes r and waits for its response, which is decoded into out when
// out is non-nil.
func (c *Client) send(ctx context.Context, r request, out any) error {
	name := r.name()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%s: not connected: %w", name, space.ErrPlatformUnavailable)
	}

	rid := fmt.Sprintf("rb-%d", c.nextID.Add(1))
	data, err := encodeRequest(r, rid)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[rid] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, rid)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", name, space.ErrPlatformUnavailable, err)
	}

	select {
	case rep := <-ch:
		if rep.Type == "Error" {
			return classify(name, rep.Message)
		}
		if out != nil {
			if err := json.Unmarshal(rep.raw, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", name, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", name, space.ErrPlatformUnavailable, ctx.Err())
	case <-done:
		return fmt.Errorf("%s: connection closed: %w", name, space.ErrPlatformUnavailable)
	}
}

func classify(name, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not in room"), strings.Contains(lower, "user not found"):
		return fmt.Errorf("%s: %s: %w", name, message, space.ErrEntityGone)
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "timeout"):
		return fmt.Errorf("%s: %s: %w", name, message, space.ErrPlatformUnavailable)
	}
	return fmt.Errorf("%s: %s: %w", name, message, ErrRejected)
}

func (c *Client) GetEntities(ctx context.Context) ([]space.Occupant, error) {
	var resp getRoomUsersResponse
	if err := c.send(ctx, getRoomUsersRequest{}, &resp); err != nil {
		return nil, err
	}
	occ, err := resp.occupants()
	if err != nil {
		return nil, fmt.Errorf("GetRoomUsers: %w", err)
	}
	return occ, nil
}

func (c *Client) MoveEntity(ctx context.Context, entityID string, pos space.Position) error {
	return c.send(ctx, teleportRequest{UserID: entityID, Destination: toWire(pos)}, nil)
}

func (c *Client) WalkTo(ctx context.Context, pos space.Position) error {
	return c.send(ctx, floorHitRequest{Destination: toWire(pos)}, nil)
}

func (c *Client) TriggerAnimation(ctx context.Context, animationID, entityID string) error {
	return c.send(ctx, emoteRequest{EmoteID: animationID, TargetUserID: entityID}, nil)
}

func (c *Client) SendRoomMessage(ctx context.Context, text string) error {
	return c.send(ctx, chatRequest{Message: text}, nil)
}

func (c *Client) SendDirectMessage(ctx context.Context, entityID, text string) error {
	return c.send(ctx, chatRequest{Message: text, WhisperTargetID: entityID}, nil)
}

func (c *Client) GetPrivilegeFlag(ctx context.Context, entityID string) (bool, error) {
	var resp getRoomPrivilegeResponse
	if err := c.send(ctx, getRoomPrivilegeRequest{UserID: entityID}, &resp); err != nil {
		return false, err
	}
	return resp.Content.Moderator, nil
}

func (c *Client) Kick(ctx context.Context, entityID string) error {
	return c.send(ctx, moderateRoomRequest{UserID: entityID, ModerationAction: "kick"}, nil)
}

var _ space.Platform = (*Client)(nil)

// Package realtime pushes profile and league events to connected learners
// over websockets.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/metrics"
	leaguerepo "github.com/codeowl/platform/internal/league/repository"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
	"github.com/codeowl/platform/pkg/logger"
)

const (
	TypeProfileUpdated  = "profile.updated"
	TypeLeagueProcessed = "league.processed"

	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Message is one event on the wire.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ProfileEvent is the payload of profile.updated.
type ProfileEvent struct {
	Hearts        int    `json:"hearts"`
	XP            int    `json:"xp"`
	WeeklyXP      int    `json:"weekly_xp"`
	StreakCount   int    `json:"streak_count"`
	StreakFreezes int    `json:"streak_freezes"`
	Gems          int    `json:"gems"`
	League        string `json:"league"`
}

type envelope struct {
	userID string // empty for everyone
	msg    Message
}

// Client is one websocket connection of a signed-in user.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan Message
}

// Hub fans events out to clients. All client bookkeeping happens on the
// run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	mu    sync.RWMutex
	count int

	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan envelope, 128),
		done:       make(chan struct{}),
		metrics:    m,
		log:        logger.Get().Named("realtime"),
	}
}

// Start runs the hub loop until ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.run(ctx)
}

// Stop closes every connection and waits for the loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// Attach registers an upgraded connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, userID string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return c
	}
	go h.writePump(c)
	go h.readPump(c)
	return c
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// ProfileUpdated pushes the new balances to the profile's owner.
func (h *Hub) ProfileUpdated(p *profilemodels.UserProfile) {
	h.publish(p.UserID, Message{
		Type:      TypeProfileUpdated,
		Timestamp: time.Now().UTC(),
		Data: ProfileEvent{
			Hearts:        p.Hearts,
			XP:            p.XP,
			WeeklyXP:      p.WeeklyXP,
			StreakCount:   p.StreakCount,
			StreakFreezes: p.StreakFreezes,
			Gems:          p.Gems,
			League:        string(p.League),
		},
	})
}

// LeagueProcessed tells everyone that standings were reset.
func (h *Hub) LeagueProcessed(summary *leaguerepo.Summary) {
	h.publish("", Message{
		Type:      TypeLeagueProcessed,
		Timestamp: time.Now().UTC(),
		Data:      summary,
	})
}

func (h *Hub) publish(userID string, msg Message) {
	select {
	case h.broadcast <- envelope{userID: userID, msg: msg}:
	case <-h.done:
	default:
		h.log.Warn("broadcast queue full, dropping event", zap.String("type", msg.Type))
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()
	defer h.closeAll()

	for {
		select {
		case <-h.done:
			return
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			h.log.Debug("client registered", zap.String("client_id", c.ID), zap.String("user_id", c.UserID))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.setCount(len(h.clients))
				h.log.Debug("client unregistered", zap.String("client_id", c.ID))
			}

		case env := <-h.broadcast:
			for c := range h.clients {
				if env.userID != "" && c.UserID != env.userID {
					continue
				}
				select {
				case c.send <- env.msg:
				default:
					h.log.Warn("client send buffer full", zap.String("client_id", c.ID))
				}
			}
		}
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.setCount(0)
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RealtimeClients.Set(float64(n))
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.leave(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.leave(c)
				return
			}
		}
	}
}

// readPump only watches for pongs and close frames.
func (h *Hub) readPump(c *Client) {
	defer h.leave(c)

	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("client read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/game"
	"github.com/playbingo/backend/internal/identity"
	"github.com/playbingo/backend/internal/logger"
	"github.com/playbingo/backend/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by middleware.WebSocketCORSCheck
	},
}

// Message is one inbound player action.
type Message struct {
	Type  string `json:"type"`
	Value int    `json:"value,omitempty"`
}

// Client is one connected participant: a websocket plus that participant's
// own session controller. The gateway is not an authority; it runs the same
// untrusted per-participant controller a standalone client would.
//
// The send channel is never closed; shutdown is signalled through done so
// that a replaced connection and its own disconnect may both tear the
// client down without racing.
type Client struct {
	conn          *websocket.Conn
	participantID string
	ctrl          *game.Controller
	send          chan []byte
	done          chan struct{}
	closeOnce     sync.Once
	cancel        context.CancelFunc
}

// close shuts the client down exactly once: subsequent calls are no-ops.
// Closing the conn unblocks the read loop promptly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Gateway tracks connected clients and bridges websocket frames to their
// session controllers.
type Gateway struct {
	st  store.Store
	cfg *config.Config
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*Client // participantID -> Client
}

// NewGateway creates a gateway over the shared store.
func NewGateway(st store.Store, cfg *config.Config) *Gateway {
	return &Gateway{
		st:      st,
		cfg:     cfg,
		log:     logger.Log,
		clients: make(map[string]*Client),
	}
}

// ConnectionCount returns the number of connected participants.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// HandleGameWebSocket upgrades the connection and runs the read loop until
// the client disconnects. An existing participant id may be supplied via
// the player_id query parameter; otherwise a fresh anonymous id is issued.
func (g *Gateway) HandleGameWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		participantID := c.Query("player_id")
		if !identity.Valid(participantID) {
			participantID = identity.NewParticipantID()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			g.log.Errorf("[ws] upgrade failed for %s: %v", participantID, err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		buffer := g.cfg.SubscribeBufferSize
		if buffer <= 0 {
			buffer = 16
		}
		client := &Client{
			conn:          conn,
			participantID: participantID,
			send:          make(chan []byte, buffer),
			done:          make(chan struct{}),
			cancel:        cancel,
		}
		client.ctrl = game.NewController(g.st, game.Options{
			AppID:          g.cfg.AppID,
			ParticipantID:  participantID,
			ClaimGrace:     g.cfg.ClaimGrace(),
			CallRetryLimit: g.cfg.CallRetryLimit,
			OnUpdate:       client.sendSnapshot,
		})

		g.register(client)
		go client.writePump(g.log)

		// Store unreachable at join is fatal for this session: one error
		// frame, then close. The client reconnects to retry.
		if err := client.ctrl.Join(ctx); err != nil {
			g.log.Errorf("[ws] join failed for %s: %v", participantID, err)
			client.sendError("Could not join the game. Please reconnect.")
			g.unregister(client)
			return
		}
		g.log.Infof("[ws] participant %s connected (%d online)", participantID, g.ConnectionCount())

		client.readPump(ctx, g)
	}
}

func (g *Gateway) register(client *Client) {
	g.mu.Lock()
	old, exists := g.clients[client.participantID]
	g.clients[client.participantID] = client
	g.mu.Unlock()

	if exists {
		// Replaced connection (e.g. a reconnecting tab). Closing the old
		// conn unblocks its read loop, whose deferred unregister finds a
		// different client in the map and leaves the replacement alone.
		old.ctrl.Close()
		old.close()
	}
}

func (g *Gateway) unregister(client *Client) {
	g.mu.Lock()
	if g.clients[client.participantID] == client {
		delete(g.clients, client.participantID)
	}
	g.mu.Unlock()

	client.ctrl.Close()
	client.close()
	g.log.Infof("[ws] participant %s disconnected (%d online)", client.participantID, g.ConnectionCount())
}

// readPump dispatches inbound actions to the session controller until the
// connection drops.
func (c *Client) readPump(ctx context.Context, g *Gateway) {
	defer g.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Errorf("[ws] read error for %s: %v", c.participantID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Invalid message")
			continue
		}

		switch msg.Type {
		case "call_number":
			err = c.ctrl.CallNumber(ctx)
		case "claim_bingo":
			err = c.ctrl.ClaimBingo(ctx)
		case "reset_game":
			err = c.ctrl.Reset(ctx)
		case "toggle_mark":
			c.ctrl.ToggleMark(msg.Value)
		default:
			c.sendError("Unknown message type: " + msg.Type)
		}
		if err != nil {
			g.log.Errorf("[ws] action %s failed for %s: %v", msg.Type, c.participantID, err)
			c.sendError("Something went wrong, please try again.")
		}
	}
}

// writePump writes outbound frames and keeps the connection alive with pings.
func (c *Client) writePump(log *zap.SugaredLogger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Connection is being replaced or cleaned up.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Errorf("[ws] write error for %s: %v", c.participantID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendSnapshot pushes a derived game state frame. Snapshots supersede each
// other, so dropping one under backpressure or after shutdown is harmless.
func (c *Client) sendSnapshot(snap game.Snapshot) {
	data, err := json.Marshal(map[string]interface{}{
		"type":  "game_state",
		"state": snap,
	})
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		// Client's buffer is full; the next snapshot carries newer state.
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}

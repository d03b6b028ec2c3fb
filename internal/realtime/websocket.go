package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"coworking/internal/domain"
	"coworking/internal/pkg/jwt"
	"coworking/internal/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
)

// Snapshotter computes the current viewer-independent grid of a space-day.
type Snapshotter interface {
	Snapshot(ctx context.Context, spaceID int64, date string) ([]domain.SlotState, error)
}

type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// clientMessage is what subscribers send us.
type clientMessage struct {
	Type    string `json:"type"`
	SpaceID int64  `json:"space_id"`
	Date    string `json:"date"`
}

type Handler struct {
	hub       *Hub
	snapshots Snapshotter
	tokens    TokenValidator
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewHandler(hub *Hub, snapshots Snapshotter, tokens TokenValidator, allowedOrigins []string, log zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:       hub,
		snapshots: snapshots,
		tokens:    tokens,
		log:       log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/slots", h.Serve)
}

// Serve upgrades the request. The token is optional; anonymous viewers
// never see hold ownership.
func (h *Handler) Serve(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.Register(userID)
	go h.writePump(conn, client)
	h.readPump(c.Request.Context(), conn, client)
}

func (h *Handler) authenticate(c *gin.Context) (int64, bool) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	if token == "" || h.tokens == nil {
		return 0, true
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, client *Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Int64("user_id", client.UserID()).Msg("websocket closed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.hub.Send(client, Message{Type: EventError, Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			h.subscribe(ctx, client, domain.ChannelKey{SpaceID: msg.SpaceID, Date: msg.Date})
		case "unsubscribe":
			h.hub.Unsubscribe(client, domain.ChannelKey{SpaceID: msg.SpaceID, Date: msg.Date})
		case "ping":
			h.hub.Send(client, Message{Type: EventPong})
		default:
			h.hub.Send(client, Message{Type: EventError, Error: "unknown message type"})
		}
	}
}

func (h *Handler) subscribe(ctx context.Context, client *Client, key domain.ChannelKey) {
	if !h.hub.Subscribe(client, key) {
		return
	}
	states, err := h.snapshots.Snapshot(ctx, key.SpaceID, key.Date)
	if err != nil {
		h.hub.Unsubscribe(client, key)
		reason := "snapshot unavailable"
		switch {
		case errors.Is(err, domain.ErrSpaceNotFound):
			reason = "space not found"
		case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrInvalidSlot):
			reason = "invalid date"
		default:
			h.log.Error().Err(err).Str("channel", key.String()).Msg("subscribe snapshot")
		}
		h.hub.Send(client, Message{Type: EventError, SpaceID: key.SpaceID, Date: key.Date, Error: reason})
		return
	}
	h.hub.Synced(client, key, Render(StatusUpdate(key, states), client.UserID()))
}

func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

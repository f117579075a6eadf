package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
	closeGrace     = 100 * time.Millisecond
)

// subscriber is one connected websocket client.
type subscriber struct {
	conn   *websocket.Conn
	send   chan model.ItemEvent
	cancel context.CancelFunc
}

// EventHub fans item events out to websocket subscribers.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*subscriber]struct{}
}

// NewEventHub creates a new EventHub instance.
func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The demo page is meant to be opened from any origin.
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*subscriber]struct{}),
	}
}

// RegisterRoutes registers the event feed route with the router.
func (h *EventHub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(PathItemEvents, h.HandleWebSocket).Methods(http.MethodGet)
}

// Publish queues event for every subscriber. Subscribers with a full
// buffer miss the event.
func (h *EventHub) Publish(event model.ItemEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.clients {
		select {
		case sub.send <- event:
		default:
			itemEventsDropped.Inc()
			h.logger.Debug("dropping item event for slow client",
				zap.String("type", event.Type),
				zap.String("remote_addr", sub.conn.RemoteAddr().String()),
			)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and subscribes the connection.
//
//nolint:contextcheck // the subscription outlives the upgrade request
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		conn:   conn,
		send:   make(chan model.ItemEvent, sendBuffer),
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("item event subscriber connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(ctx, sub)
	go h.readPump(ctx, sub)
}

// readPump discards client messages and detects disconnects.
func (h *EventHub) readPump(ctx context.Context, sub *subscriber) {
	defer func() {
		h.removeClient(sub)
		if err := sub.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	sub.conn.SetReadLimit(maxMessageSize)
	if err := sub.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump delivers queued events and keeps the connection alive.
func (h *EventHub) writePump(ctx context.Context, sub *subscriber) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(sub.conn)
			return
		case event := <-sub.send:
			if err := h.write(sub.conn, func() error { return sub.conn.WriteJSON(event) }); err != nil {
				h.logger.Debug("failed to send item event", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.write(sub.conn, func() error {
				return sub.conn.WriteMessage(websocket.PingMessage, nil)
			}); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventHub) write(conn *websocket.Conn, fn func() error) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

func (h *EventHub) sendCloseMessage(conn *websocket.Conn) {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := h.write(conn, func() error {
		return conn.WriteMessage(websocket.CloseMessage, closeMsg)
	}); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

func (h *EventHub) removeClient(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[sub]; ok {
		sub.cancel()
		delete(h.clients, sub)
		h.logger.Info("item event subscriber disconnected", zap.String("remote_addr", sub.conn.RemoteAddr().String()))
	}
}

// CloseAllConnections sends a close frame to every subscriber and closes
// the connections.
func (h *EventHub) CloseAllConnections() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}

	// writePump needs a moment to flush the close frames.
	time.Sleep(closeGrace)

	h.mu.Lock()
	for _, sub := range subs {
		if _, ok := h.clients[sub]; !ok {
			continue
		}
		if err := sub.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, sub)
	}
	h.mu.Unlock()

	h.logger.Info("all item event subscribers closed")
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// DefaultStatusSocketLifetime bounds a single status connection. Clients
	// reconnect or fall back to polling once it elapses.
	DefaultStatusSocketLifetime = 30 * time.Minute
)

// StatusSubscriber hands out live status feeds per order reference.
type StatusSubscriber interface {
	Subscribe(reference string) (<-chan models.OrderStatusUpdate, func())
}

// OrderLookup loads the current state of an order.
type OrderLookup interface {
	GetOrder(ctx context.Context, reference string) (*models.Order, error)
}

// StatusHandler streams order status changes over a websocket
type StatusHandler struct {
	hub         StatusSubscriber
	orders      OrderLookup
	upgrader    websocket.Upgrader
	maxLifetime time.Duration
}

// NewStatusHandler creates a status handler. allowedOrigin restricts the
// upgrade to the storefront; empty allows any origin.
func NewStatusHandler(hub StatusSubscriber, orders OrderLookup, allowedOrigin string) *StatusHandler {
	return &StatusHandler{
		hub:         hub,
		orders:      orders,
		maxLifetime: DefaultStatusSocketLifetime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// WithMaxLifetime overrides how long one connection may stay open. Values
// of zero or less keep the default.
func (h *StatusHandler) WithMaxLifetime(d time.Duration) *StatusHandler {
	if d > 0 {
		h.maxLifetime = d
	}
	return h
}

// OrderStatusSocket sends the current status on connect, then every change
// until the order reaches a final state, the client goes away or the
// connection lifetime runs out.
func (h *StatusHandler) OrderStatusSocket(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	order, err := h.orders.GetOrder(r.Context(), reference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	updates, cancel := h.hub.Subscribe(reference)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("reference", reference).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader loop: handles pongs and notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current := order.StatusUpdate()
	if err := writeStatus(conn, current); err != nil {
		return
	}
	if done(current, order.ShippingPending) {
		closeSocket(conn, websocket.CloseNormalClosure, "final status")
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	expire := time.NewTimer(h.maxLifetime)
	defer expire.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := writeStatus(conn, update); err != nil {
				return
			}
			if done(update, order.ShippingPending) {
				closeSocket(conn, websocket.CloseNormalClosure, "final status")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-expire.C:
			closeSocket(conn, websocket.CloseTryAgainLater, "connection lifetime reached")
			return
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// done reports whether no further update can arrive for the order.
func done(update models.OrderStatusUpdate, shippingPending bool) bool {
	switch update.PaymentStatus {
	case models.PaymentFailed:
		return true
	case models.PaymentCompleted:
		return !shippingPending || update.DeliveryFeePaid
	default:
		return false
	}
}

func writeStatus(conn *websocket.Conn, update models.OrderStatusUpdate) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(update)
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

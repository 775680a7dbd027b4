package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// Tick is one applied price observation pushed to live subscribers.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 64

// Hub fans applied ticks out to websocket subscribers. A subscriber that
// cannot keep up with the buffer is dropped rather than blocking ingestion.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Tick]struct{}
	upgrader    websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Tick]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// PublishTick delivers the tick to every subscriber without blocking.
func (h *Hub) PublishTick(symbol string, price float64, timestamp time.Time) {
	tick := Tick{Symbol: symbol, Price: price, Timestamp: timestamp}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub <- tick:
		default:
			// subscriber buffer full, skip this tick for them
		}
	}
}

func (h *Hub) subscribe() chan Tick {
	sub := make(chan Tick, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub chan Tick) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams ticks until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Error("failed to upgrade tick stream connection")
		return
	}

	sub := h.subscribe()

	// reader goroutine: we never expect client frames, but reading is how
	// close frames and dead peers are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.unsubscribe(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case tick := <-sub:
			if err := conn.WriteJSON(tick); err != nil {
				logger.WithError(err).Debug("tick subscriber write failed, dropping")
				return
			}
		}
	}
}

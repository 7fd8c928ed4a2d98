package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/refbatch/refbatch/internal/models"
)

type wsClient struct {
	conn  *websocket.Conn
	jobID string
}

type wsMessage struct {
	jobID   string
	payload []byte
}

type wsDirect struct {
	conn    *websocket.Conn
	payload []byte
}

// WSHub fans events from the Redis channel out to WebSocket watchers. Each
// client follows exactly one job and only sees that job's events. All writes
// go through the run loop, so nothing else may write to a registered conn.
type WSHub struct {
	clients    map[*websocket.Conn]string
	broadcast  chan wsMessage
	direct     chan wsDirect
	register   chan wsClient
	unregister chan *websocket.Conn
	redis      *redis.Client
	mu         sync.Mutex
}

func NewWSHub(rdb *redis.Client) *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan wsMessage),
		direct:     make(chan wsDirect),
		register:   make(chan wsClient),
		unregister: make(chan *websocket.Conn),
		redis:      rdb,
	}
}

func (h *WSHub) Run() {
	// Start Redis subscriber in background
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client.jobID
			h.mu.Unlock()
			log.Printf("WS: client connected for job %s", client.jobID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				log.Println("WS: client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn, jobID := range h.clients {
				if jobID != message.jobID {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, message.payload); err != nil {
					log.Printf("WS: write error: %v, closing client", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()

		case d := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[d.conn]; ok {
				if err := d.conn.WriteMessage(websocket.TextMessage, d.payload); err != nil {
					log.Printf("WS: write error: %v, closing client", err)
					d.conn.Close()
					delete(h.clients, d.conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WSHub) subscribeRedis() {
	ctx := context.Background()
	queue := NewQueueService(h.redis)
	pubsub := queue.Subscribe(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var event models.JobEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("WS: failed to unmarshal event: %v", err)
			continue
		}
		h.broadcast <- wsMessage{jobID: event.JobID, payload: []byte(msg.Payload)}
	}
}

func (h *WSHub) RegisterClient(conn *websocket.Conn, jobID string) {
	h.register <- wsClient{conn: conn, jobID: jobID}
}

// SendTo writes one message to a single registered client, serialized with
// the broadcast writes. Messages to unknown conns are dropped.
func (h *WSHub) SendTo(conn *websocket.Conn, payload []byte) {
	h.direct <- wsDirect{conn: conn, payload: payload}
}

func (h *WSHub) UnregisterClient(conn *websocket.Conn) {
	h.unregister <- conn
}

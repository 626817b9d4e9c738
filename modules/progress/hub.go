package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes job progress updates to websocket subscribers. Subscribers are
// keyed by job id; a client connects to /ws/jobs?jobId=... and receives every
// persisted snapshot of that job until it closes or the job terminates.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string][]*subscriber)}
}

// ServeWS upgrades the connection and registers it for one job's updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "Missing jobId parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.subscribers[jobID] = append(h.subscribers[jobID], sub)
	count := len(h.subscribers[jobID])
	h.mu.Unlock()
	log.Printf("🔌 WebSocket subscriber joined job %s (total: %d)", jobID, count)

	go sub.writePump()
	go h.readPump(jobID, sub)
}

// Notify pushes a snapshot to every subscriber of the job. Slow subscribers
// are dropped rather than blocking the orchestrator.
func (h *Hub) Notify(jobID string, snapshot interface{}) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("⚠️  Failed to marshal progress update: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[jobID]
	alive := subs[:0]
	for _, sub := range subs {
		select {
		case sub.send <- data:
			alive = append(alive, sub)
		default:
			close(sub.send)
			log.Printf("👋 Dropping slow subscriber on job %s", jobID)
		}
	}
	if len(alive) == 0 {
		delete(h.subscribers, jobID)
	} else {
		h.subscribers[jobID] = alive
	}
}

func (h *Hub) readPump(jobID string, sub *subscriber) {
	defer h.remove(jobID, sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  WebSocket read error on job %s: %v", jobID, err)
			}
			return
		}
	}
}

func (h *Hub) remove(jobID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[jobID]
	for i, candidate := range subs {
		if candidate == sub {
			h.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(sub.send)
			break
		}
	}
	if len(h.subscribers[jobID]) == 0 {
		delete(h.subscribers, jobID)
	}
	sub.conn.Close()
}

func (s *subscriber) writePump() {
	for message := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

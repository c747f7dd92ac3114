package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/JustinTDCT/CineHub/internal/auth"
	"github.com/JustinTDCT/CineHub/internal/httputil"
	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// ──────────────────── WebSocket Hub ────────────────────

type WSHub struct {
	mu          sync.RWMutex
	clients     map[*WSClient]bool
	activeTasks map[string]json.RawMessage // task_id → last task:update payload
	progress    map[models.MediaType]json.RawMessage
	tasksMu     sync.RWMutex
}

type WSClient struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients:     make(map[*WSClient]bool),
		activeTasks: make(map[string]json.RawMessage),
		progress:    make(map[models.MediaType]json.RawMessage),
	}
}

// Broadcast sends an event to every connected client. Slow clients drop
// messages rather than block the sender.
func (h *WSHub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		return
	}

	if event == "task:update" {
		h.trackTask(data, msg)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// Report implements ingest.ProgressSink.
func (h *WSHub) Report(ctx context.Context, p ingest.Progress) {
	msg, err := json.Marshal(WSMessage{Event: "ingest:progress", Data: p})
	if err != nil {
		return
	}
	h.tasksMu.Lock()
	if p.State == ingest.StateRunning {
		h.progress[p.Kind] = msg
	} else {
		delete(h.progress, p.Kind)
	}
	h.tasksMu.Unlock()

	h.Broadcast("ingest:progress", p)
}

// trackTask keeps a snapshot of each running task so new clients get current state.
func (h *WSHub) trackTask(data interface{}, raw []byte) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return
	}
	taskID, _ := m["task_id"].(string)
	status, _ := m["status"].(string)
	if taskID == "" {
		return
	}

	h.tasksMu.Lock()
	defer h.tasksMu.Unlock()
	if status == "complete" || status == "failed" {
		delete(h.activeTasks, taskID)
	} else {
		h.activeTasks[taskID] = json.RawMessage(raw)
	}
}

// sendActiveState replays running tasks and ingestion progress to a newly
// connected client.
func (h *WSHub) sendActiveState(client *WSClient) {
	h.tasksMu.RLock()
	defer h.tasksMu.RUnlock()
	for _, msg := range h.activeTasks {
		select {
		case client.send <- msg:
		default:
		}
	}
	for _, msg := range h.progress {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *WSHub) addClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *WSHub) removeClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────── WebSocket Handler ────────────────────

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		userID: user.UserID,
		send:   make(chan []byte, 64),
	}

	s.wsHub.addClient(client)
	s.wsHub.sendActiveState(client)
	logger.Debug("websocket client connected", "user_id", client.userID)

	ctx := r.Context()

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for msg := range client.send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	// Reads only keep the connection alive; clients send nothing we act on.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	s.wsHub.removeClient(client)
	logger.Debug("websocket client disconnected", "user_id", client.userID)
}

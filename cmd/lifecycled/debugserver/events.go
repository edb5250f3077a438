package debugserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/caxtonio/agentcore/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventsHandler fans orchestrator.Events() out to every connected
// websocket client. Grounded on the teacher's server.WSHandler
// (client set behind a mutex, a single background goroutine draining
// the source channel and broadcasting), generalized from one queue's
// pending-approval notifications to the full lifecycle event stream.
type eventsHandler struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func newEventsHandler(orch *orchestrator.Orchestrator, log zerolog.Logger) *eventsHandler {
	h := &eventsHandler{log: log, clients: make(map[*websocket.Conn]bool)}
	go h.broadcastLoop(orch.Events())
	return h
}

func (h *eventsHandler) handle(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error().Err(err).Msg("events websocket upgrade failed")
		return err
	}
	defer ws.Close()

	h.add(ws)
	defer h.remove(ws)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	return nil
}

func (h *eventsHandler) broadcastLoop(ch <-chan orchestrator.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.Warn().Err(err).Msg("marshal lifecycle event for broadcast")
			continue
		}
		h.broadcast(data)
	}
}

func (h *eventsHandler) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn().Err(err).Msg("write to events websocket client")
		}
	}
}

func (h *eventsHandler) add(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ws] = true
}

func (h *eventsHandler) remove(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ws)
}

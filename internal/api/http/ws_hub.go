package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/metrics"
	"scuba/searchservice/internal/search"
)

const (
	EventRender            = "render"
	EventError             = "error"
	EventLoadingStarted    = "loadingStarted"
	EventLoadingStopped    = "loadingStopped"
	EventNavigateRequested = "navigateRequested"
	EventState             = "state"
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type renderEvent struct {
	TabID    string               `json:"tabId"`
	Category domain.Category      `json:"category"`
	Payload  domain.RenderPayload `json:"payload"`
}

type errorEvent struct {
	TabID     string          `json:"tabId"`
	QueryID   string          `json:"queryId"`
	Category  domain.Category `json:"category"`
	Query     string          `json:"query"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
}

type loadingEvent struct {
	Message string `json:"message,omitempty"`
}

type navigateEvent struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

type wsClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans orchestrator events out to every connected shell over
// websockets. It implements the render, loading and navigation sinks of the
// search service. Sends never block: a client that cannot keep up is dropped.
type EventHub struct {
	clients     map[*wsClient]bool
	broadcast   chan []byte
	register    chan *wsClient
	unregister  chan *wsClient
	done        chan struct{}
	stopped     chan struct{}
	subscribers atomic.Int64
	logger      *slog.Logger
}

var (
	_ search.Renderer         = (*EventHub)(nil)
	_ search.LoadingIndicator = (*EventHub)(nil)
	_ search.Navigator        = (*EventHub)(nil)
)

// NewEventHub starts the hub loop. Close stops it.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &EventHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *EventHub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				h.drop(client)
			}
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.subscribers.Add(1)
			metrics.EventSubscribers.Inc()
			h.logger.Debug("ws client connected", slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					h.drop(client)
				}
			}
		}
	}
}

func (h *EventHub) drop(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
	h.subscribers.Add(-1)
	metrics.EventSubscribers.Dec()
}

// Close disconnects every client and waits for the hub loop to exit.
func (h *EventHub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.stopped
}

func (h *EventHub) Subscribers() int {
	return int(h.subscribers.Load())
}

// Broadcast sends a typed JSON message to all connected clients.
func (h *EventHub) Broadcast(msgType string, data any) {
	if h.subscribers.Load() == 0 {
		return
	}
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("ws broadcast dropped", slog.String("type", msgType))
	}
}

func (h *EventHub) Render(tabID string, payload domain.RenderPayload) {
	h.Broadcast(EventRender, renderEvent{TabID: tabID, Category: payload.Category, Payload: payload})
}

func (h *EventHub) RenderError(tabID string, failure search.Failure) {
	h.Broadcast(EventError, errorEvent{
		TabID:     tabID,
		QueryID:   failure.QueryID,
		Category:  failure.Category,
		Query:     failure.Query,
		Message:   failure.Message,
		Retryable: failure.Retryable,
	})
}

func (h *EventHub) StateChanged(_ string, snapshot search.Snapshot) {
	h.Broadcast(EventState, snapshot)
}

func (h *EventHub) LoadingStarted(message string) {
	h.Broadcast(EventLoadingStarted, loadingEvent{Message: message})
}

func (h *EventHub) LoadingStopped() {
	h.Broadcast(EventLoadingStopped, loadingEvent{})
}

func (h *EventHub) NavigateRequested(tabID, url string) {
	h.Broadcast(EventNavigateRequested, navigateEvent{TabID: tabID, URL: url})
}

// Serve upgrades the request and attaches the connection to the hub.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go client.writePump()
	go client.readPump()
	return nil
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; the shell sends commands over HTTP.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"narrator/internal/engine"
)

// WSMessage represents a message from the narrator's screen
type WSMessage struct {
	Action   string           `json:"action"` // start | submit | reset
	Game     *gameRequest     `json:"game,omitempty"`
	Decision *engine.Decision `json:"decision,omitempty"`
}

// Frame types pushed to screens
const (
	FrameState   = "state"
	FrameOutcome = "outcome"
	FrameToast   = "toast"
	FrameStory   = "story"
)

// Frame is a message pushed to screens
type Frame struct {
	Type    string           `json:"type"`
	State   *engine.Snapshot `json:"state,omitempty"`
	Outcome *engine.Outcome  `json:"outcome,omitempty"`
	Toast   *Toast           `json:"toast,omitempty"`
	Story   *Story           `json:"story,omitempty"`
}

// Client represents a websocket connection. Only narrator screens see roles
// and may drive the game; table screens follow along.
type Client struct {
	conn     *websocket.Conn
	narrator bool
	writeMu  sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// sendFrame writes a frame to this client only
func (c *Client) sendFrame(f Frame) {
	message, err := json.Marshal(f)
	if err != nil {
		log.Printf("WebSocket marshal error: %v", err)
		return
	}
	LogWSMessage("OUT", c.conn.RemoteAddr().String(), string(message))
	if err := c.write(message); err != nil {
		log.Printf("WebSocket write error to %s: %v", c.conn.RemoteAddr(), err)
	}
}

// broadcastMsg is one frame encoded for each kind of screen.
type broadcastMsg struct {
	narrator []byte
	table    []byte
}

// WebSocket hub for broadcasting updates to all connected screens
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan broadcastMsg),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// start runs the hub goroutine
func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// count returns the number of connected screens
func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish broadcasts a frame; it is dropped once the hub has stopped. Table
// screens get the state with hidden information stripped.
func (h *Hub) publish(f Frame) {
	var msg broadcastMsg
	var err error
	if msg.narrator, err = json.Marshal(f); err != nil {
		log.Printf("WebSocket marshal error: %v", err)
		return
	}
	msg.table = msg.narrator
	if f.State != nil {
		view := f.State.TableView()
		f.State = &view
		if msg.table, err = json.Marshal(f); err != nil {
			log.Printf("WebSocket marshal error: %v", err)
			return
		}
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (%s). Total: %d", client.conn.RemoteAddr(), total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			LogWSMessage("OUT", "*", string(msg.narrator))
			h.mu.Lock()
			for conn, client := range h.clients {
				message := msg.table
				if client.narrator {
					message = msg.narrator
				}
				if err := client.write(message); err != nil {
					log.Printf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var upgrader = websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}

	narrator := r.URL.Query().Get("narrator") == "1"
	DebugLog("handleWebSocket: %s connected (narrator=%t)", conn.RemoteAddr(), narrator)
	client := &Client{conn: conn, narrator: narrator}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	snap := s.snapshot()
	if !narrator {
		snap = snap.TableView()
	}
	client.sendFrame(Frame{Type: FrameState, State: &snap})

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(r.Context())

	// Handle messages and disconnection
	go func() {
		defer func() {
			select {
			case s.hub.unregister <- conn:
			case <-s.hub.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleWSMessage(ctx, client, message)
		}
	}()
}

func (s *server) handleWSMessage(ctx context.Context, client *Client, message []byte) {
	remote := client.conn.RemoteAddr().String()

	// A panic must not take down the reader goroutine, and with it the process.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC handling WebSocket message from %s: %v", remote, r)
			sendErrorToast(client, "Internal error")
		}
	}()

	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("WebSocket unmarshal error from %s: %v", remote, err)
		sendErrorToast(client, "Malformed message")
		return
	}

	LogWSMessage("IN", remote, string(message))

	if !client.narrator {
		sendErrorToast(client, "Only a narrator screen can do that")
		return
	}

	// Route action to the appropriate handler based on action type
	switch msg.Action {
	case "start":
		if msg.Game == nil {
			sendErrorToast(client, "Missing game setup")
			return
		}
		if err := s.start(ctx, *msg.Game); err != nil {
			sendErrorToast(client, err.Error())
		}
	case "submit":
		var d engine.Decision
		if msg.Decision != nil {
			d = *msg.Decision
		}
		out, err := s.submit(ctx, d)
		if err != nil {
			sendErrorToast(client, err.Error())
			return
		}
		client.sendFrame(Frame{Type: FrameOutcome, Outcome: &out})
	case "reset":
		s.reset(ctx)
	default:
		log.Printf("Unknown action %q from %s", msg.Action, remote)
		sendErrorToast(client, "Unknown action: "+msg.Action)
	}
}

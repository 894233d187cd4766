package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"LabelPrinter/app/models"
	"LabelPrinter/app/security"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	TypePrintSubmit  MessageType = "print_submit"  // client -> server
	TypePrintConfirm MessageType = "print_confirm" // client -> server
	TypePrintUpdate  MessageType = "print_update"  // server -> clients, every state change
	TypePrintResult  MessageType = "print_result"  // server -> requesting client
	TypeError        MessageType = "error"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeAuthResponse MessageType = "auth_response"
)

const mdnsServiceType = "_labelprint._tcp"

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID          string
	Connection  *websocket.Conn
	Send        chan []byte
	Server      *Server
	ConnectedAt time.Time
	RemoteAddr  string
}

// Server serves the print API to UI clients: REST endpoints plus a
// WebSocket feed of print run updates.
type Server struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	mu         sync.RWMutex

	port       int
	apiKeyHash string
	verifyKey  func(hash, key string) error
	knownKeys  sync.Map // sha256 of keys that passed verifyKey
	announce   bool
	printer    PrintOrchestrator
	logger     *zap.Logger

	httpServer *http.Server
	mdnsServer *zeroconf.Server
}

// ServerConfig configures the collaborator server
type ServerConfig struct {
	Port       int
	APIKeyHash string
	MDNS       bool
	Logger     *zap.Logger
}

// NewServer creates a new server around printer
func NewServer(cfg ServerConfig, printer PrintOrchestrator) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		port:       cfg.Port,
		apiKeyHash: cfg.APIKeyHash,
		verifyKey:  security.VerifyAPIKey,
		announce:   cfg.MDNS,
		printer:    printer,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from local network
				return true
			},
		},
	}
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	h := NewRESTHandlers(s.printer, s.logger)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /ws", s.requireAPIKey(http.HandlerFunc(s.handleWebSocket)))

	mux.Handle("POST /api/print", s.requireAPIKey(http.HandlerFunc(h.HandleSubmit)))
	mux.Handle("GET /api/print/{id}", s.requireAPIKey(http.HandlerFunc(h.HandleGetRun)))
	mux.Handle("POST /api/print/{id}/confirm", s.requireAPIKey(http.HandlerFunc(h.HandleConfirm)))
	mux.Handle("GET /api/history", s.requireAPIKey(http.HandlerFunc(h.HandleHistory)))
	mux.Handle("GET /api/duplicates", s.requireAPIKey(http.HandlerFunc(h.HandleDuplicates)))
	mux.Handle("POST /api/preview", s.requireAPIKey(http.HandlerFunc(h.HandlePreview)))

	return mux
}

// Start runs the hub and serves HTTP until Stop is called
func (s *Server) Start() error {
	go s.run()

	if s.announce {
		s.startMDNS()
	}

	s.logger.Info("print server starting", zap.Int("port", s.port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startMDNS announces the print server via mDNS/Zeroconf
func (s *Server) startMDNS() {
	server, err := zeroconf.Register(
		"Label Printer",         // Service instance name
		mdnsServiceType,         // Service type
		"local.",                // Domain
		s.port,                  // Port
		[]string{"version=1.0"}, // TXT records
		nil,                     // Network interfaces (nil = all)
	)
	if err != nil {
		s.logger.Warn("mDNS: failed to register service", zap.Error(err))
		return
	}

	s.mdnsServer = server
	s.logger.Info("mDNS: label printer announced", zap.String("service", mdnsServiceType+".local"))
}

// Stop shuts down HTTP, the mDNS announcement and every client
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.mdnsServer != nil {
			s.mdnsServer.Shutdown()
			s.logger.Info("mDNS: service announcement stopped")
		}
		err = s.httpServer.Shutdown(ctx)
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, client := range s.clients {
			client.Connection.Close()
			delete(s.clients, id)
		}
	})
	return err
}

// run handles the main server loop
func (s *Server) run() {
	ticker := time.NewTicker(30 * time.Second) // Heartbeat every 30 seconds
	defer ticker.Stop()

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			s.mu.Unlock()
			s.logger.Debug("client registered", zap.String("client_id", client.ID), zap.String("remote", client.RemoteAddr))
			s.sendAuthResponse(client)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client.ID]; ok {
				delete(s.clients, client.ID)
				close(client.Send)
				s.logger.Debug("client unregistered", zap.String("client_id", client.ID))
			}
			s.mu.Unlock()

		case message := <-s.broadcast:
			s.mu.Lock()
			for id, client := range s.clients {
				select {
				case client.Send <- message:
				default:
					// Client buffer is full, disconnect
					delete(s.clients, id)
					close(client.Send)
				}
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.BroadcastMessage(newMessage(TypeHeartbeat, map[string]string{"status": "alive"}))

		case <-s.done:
			return
		}
	}
}

// BroadcastRun pushes a print run snapshot to every client
func (s *Server) BroadcastRun(run models.PrintRun) {
	s.BroadcastMessage(newMessage(TypePrintUpdate, run))
}

// BroadcastMessage queues a message for every connected client. Messages
// are dropped when the hub is saturated.
func (s *Server) BroadcastMessage(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn("could not marshal broadcast", zap.Error(err))
		return
	}

	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn("broadcast queue full, message dropped", zap.String("type", string(message.Type)))
	}
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket handles WebSocket connection upgrades
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Server:      s,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// handleHealth handles health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"clients": s.ClientCount(),
		"time":    time.Now(),
	})
}

func (s *Server) sendAuthResponse(client *Client) {
	client.sendMessage(newMessage(TypeAuthResponse, map[string]interface{}{
		"success":   true,
		"client_id": client.ID,
		"message":   "Connected successfully",
	}))
}

// Client methods

// readPump handles reading messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Server.unregister <- c:
		case <-c.Server.done:
		}
		c.Connection.Close()
	}()

	c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Server.logger.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.sendError(fmt.Sprintf("invalid message: %v", err))
			continue
		}

		c.handleMessage(&message)
	}
}

// writePump handles writing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ConfirmData is the payload of a print_confirm message
type ConfirmData struct {
	RunID   string `json:"run_id"`
	Proceed bool   `json:"proceed"`
}

// handleMessage handles incoming messages from clients
func (c *Client) handleMessage(message *Message) {
	switch message.Type {
	case TypeHeartbeat:
		c.sendMessage(newMessage(TypeHeartbeat, map[string]string{"status": "alive"}))

	case TypePrintSubmit:
		var req models.PrintRequest
		if err := json.Unmarshal(message.Data, &req); err != nil {
			c.sendError(fmt.Sprintf("invalid print request: %v", err))
			return
		}
		// Dispatch can block for seconds; keep reading meanwhile
		go func() {
			run, err := c.Server.printer.Submit(context.Background(), req)
			c.sendResult(run, err)
		}()

	case TypePrintConfirm:
		var data ConfirmData
		if err := json.Unmarshal(message.Data, &data); err != nil {
			c.sendError(fmt.Sprintf("invalid confirmation: %v", err))
			return
		}
		go func() {
			run, err := c.Server.printer.ConfirmDuplicate(context.Background(), data.RunID, data.Proceed)
			c.sendResult(run, err)
		}()

	default:
		c.sendError(fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

func (c *Client) sendResult(run models.PrintRun, err error) {
	c.sendMessage(newMessage(TypePrintResult, NewRunResponse(run, err)))
}

func (c *Client) sendError(msg string) {
	c.sendMessage(newMessage(TypeError, map[string]string{"error": msg}))
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(message Message) error {
	message.ClientID = c.ID
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.Server.mu.RLock()
	defer c.Server.mu.RUnlock()
	if _, ok := c.Server.clients[c.ID]; !ok {
		return fmt.Errorf("client %s is disconnected", c.ID)
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}

func newMessage(t MessageType, data interface{}) Message {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return Message{Type: t, Timestamp: time.Now(), Data: raw}
}

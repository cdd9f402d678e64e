package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type Config struct {
	Port       string
	DBPath     string
	SessionKey string
}

func loadConfig() Config {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := Config{
		Port:       os.Getenv("PORT"),
		DBPath:     os.Getenv("POD_DB"),
		SessionKey: os.Getenv("POD_SESSION_KEY"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./podnet.db"
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "podnet-dev-session-key"
	}
	return cfg
}

type Server struct {
	db       *sql.DB
	router   *mux.Router
	hub      *Hub
	upgrader websocket.Upgrader
	sessions *sessions.CookieStore
	log      *zap.SugaredLogger
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewServer(cfg Config, logger *zap.SugaredLogger) (*Server, error) {
	db, err := initDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	hub := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	s := &Server{
		db:       db,
		router:   mux.NewRouter(),
		hub:      hub,
		sessions: sessions.NewCookieStore([]byte(cfg.SessionKey)),
		log:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	go s.hub.run(logger)

	return s, nil
}

func (h *Hub) run(log *zap.SugaredLogger) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Debugw("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Debugw("client disconnected", "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/party", s.handleEstablishParty).Methods("POST")
	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/folders", s.handleCreateFolder).Methods("POST")
	api.HandleFunc("/cards", s.handleDeployCard).Methods("POST")
	api.HandleFunc("/cards/{id}/clicks", s.handleRecordClick).Methods("POST")
	api.HandleFunc("/cards/{id}/connect", s.handleConnect).Methods("POST")
	api.HandleFunc("/standings", s.handleGetStandings).Methods("GET")
	api.HandleFunc("/standings/export", s.handleExportStandings).Methods("GET")
	api.HandleFunc("/warnings", s.handleBroadcastWarning).Methods("POST")
	api.HandleFunc("/powerhour", s.handleStartPowerHour).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcastChange pushes an opaque party-tagged change signal to every
// connected client. There is no payload beyond the scope; clients re-fetch
// the full state.
func (s *Server) broadcastChange(partyID string) {
	message := map[string]string{
		"type":     "change",
		"party_id": partyID,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		s.log.Errorw("broadcast marshal failed", "error", err)
		return
	}

	s.hub.broadcast <- jsonData
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg := loadConfig()
	server, err := NewServer(cfg, log)
	if err != nil {
		log.Fatalw("server init failed", "error", err)
	}

	log.Infow("server starting", "port", cfg.Port, "db", cfg.DBPath)
	if err := http.ListenAndServe(":"+cfg.Port, server.router); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/vanish/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browsers and the CLI connect from arbitrary origins; there is no
	// cookie-based state to protect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServerInfo is the body of GET /api/server-info.
type ServerInfo struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /api/server-info", s.serveInfo)
	mux.HandleFunc("GET /health", healthCheck)
	return mux
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := signaling.NewConn(ws, s.router, s.log)
	if !s.track(conn) {
		ws.Close()
		return
	}
	defer s.untrack(conn)

	s.log.Debug("Connection accepted", "conn", conn.ID(), "remote", r.RemoteAddr)
	conn.Serve()
}

func (s *Server) serveInfo(w http.ResponseWriter, r *http.Request) {
	ip, err := s.localIP()
	if err != nil {
		ip = "localhost"
	}
	info := ServerInfo{
		IP:   ip,
		Port: s.cfg.Port,
		URL:  fmt.Sprintf("http://%s:%d", ip, s.cfg.Port),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.log.Warn("Error writing server info", "error", err)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

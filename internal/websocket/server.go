package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/pkg/types"
)

const (
	writeWait  = 5 * time.Second
	readLimit  = 4096
	closeGrace = time.Second
)

const (
	EventConnected = "connected"
	EventPhase     = "phase"
	EventComplete  = "complete"
	EventError     = "error"
)

// Event is one progress message sent to subscribers of a run.
type Event struct {
	Type   string      `json:"type"`
	RunID  string      `json:"run_id"`
	Phase  types.Phase `json:"phase,omitempty"`
	Result any         `json:"result,omitempty"`
	Code   string      `json:"code,omitempty"`
	Error  string      `json:"error,omitempty"`
	Time   int64       `json:"time"`
}

// Server fans progress events out to WebSocket subscribers keyed by run ID.
// Subscribers should wait for the "connected" event before starting the run,
// since events published earlier are not replayed.
type Server struct {
	upgrader       websocket.Upgrader
	clients        map[string]map[*websocket.Conn]*clientConn
	allowedOrigins []string
	pingInterval   time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	mu             sync.RWMutex
	logger         *logging.Logger
}

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewServer() *Server {
	server := &Server{
		clients:      make(map[string]map[*websocket.Conn]*clientConn),
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
		logger:       logging.NewLogger("websocket"),
	}
	server.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return server.isAllowedOrigin(r.Header.Get("Origin"), r.Host)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	server.startPingLoop()
	return server
}

func (s *Server) SetAllowedOrigins(origins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedOrigins = origins
}

func (s *Server) SetPingInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingInterval = interval
}

// Subscribers returns the number of connections listening to runID.
func (s *Server) Subscribers(runID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[runID])
}

// HandleRun upgrades the request and keeps the connection subscribed to
// runID until the client disconnects or the run finishes.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request, runID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", logging.Err(err), logging.F("run_id", runID))
		return
	}
	defer conn.Close()

	// Reads only detect disconnects.
	conn.SetReadLimit(readLimit)

	client := &clientConn{conn: conn}
	s.mu.Lock()
	if s.clients[runID] == nil {
		s.clients[runID] = make(map[*websocket.Conn]*clientConn)
	}
	s.clients[runID][conn] = client
	s.mu.Unlock()
	defer s.removeClient(runID, conn)

	if err := client.writeJSON(Event{Type: EventConnected, RunID: runID, Time: time.Now().Unix()}); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) PublishPhase(runID string, phase types.Phase) {
	s.broadcast(Event{Type: EventPhase, RunID: runID, Phase: phase}, false)
}

// PublishResult sends the final result and closes the run's subscriptions.
func (s *Server) PublishResult(runID string, result any) {
	s.broadcast(Event{Type: EventComplete, RunID: runID, Result: result}, true)
}

// PublishError sends a failure and closes the run's subscriptions.
func (s *Server) PublishError(runID, code, message string) {
	s.broadcast(Event{Type: EventError, RunID: runID, Code: code, Error: message}, true)
}

func (s *Server) broadcast(ev Event, terminal bool) {
	s.mu.RLock()
	clients := s.clients[ev.RunID]
	clientList := make([]*clientConn, 0, len(clients))
	for _, client := range clients {
		clientList = append(clientList, client)
	}
	s.mu.RUnlock()
	if len(clientList) == 0 {
		return
	}

	ev.Time = time.Now().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("marshal event failed", logging.F("run_id", ev.RunID), logging.Err(err))
		return
	}

	for _, client := range clientList {
		if err := client.writeMessage(websocket.TextMessage, data); err != nil {
			s.removeClient(ev.RunID, client.conn)
			client.conn.Close()
			continue
		}
		if terminal {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Type)
			_ = client.writeControl(websocket.CloseMessage, msg)
		}
	}
}

func (s *Server) startPingLoop() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		interval := s.getPingInterval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.pingClients()
				if next := s.getPingInterval(); next != interval {
					interval = next
					ticker.Reset(interval)
				}
			}
		}
	}()
}

// Close stops the ping loop and disconnects every subscriber.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	s.mu.Lock()
	var conns []*clientConn
	for _, runClients := range s.clients {
		for _, client := range runClients {
			conns = append(conns, client)
		}
	}
	s.mu.Unlock()
	for _, client := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = client.writeControl(websocket.CloseMessage, msg)
		client.conn.Close()
	}
}

func (s *Server) getPingInterval() time.Duration {
	s.mu.RLock()
	interval := s.pingInterval
	s.mu.RUnlock()
	if interval <= 0 {
		return 30 * time.Second
	}
	return interval
}

func (s *Server) pingClients() {
	type clientRef struct {
		runID  string
		client *clientConn
	}

	var refs []clientRef
	s.mu.RLock()
	for runID, runClients := range s.clients {
		for _, client := range runClients {
			refs = append(refs, clientRef{runID: runID, client: client})
		}
	}
	s.mu.RUnlock()

	for _, ref := range refs {
		if err := ref.client.writeControl(websocket.PingMessage, nil); err != nil {
			s.removeClient(ref.runID, ref.client.conn)
			ref.client.conn.Close()
		}
	}
}

func (s *Server) removeClient(runID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients[runID] == nil {
		return
	}
	delete(s.clients[runID], conn)
	if len(s.clients[runID]) == 0 {
		delete(s.clients, runID)
	}
}

func (s *Server) isAllowedOrigin(origin string, host string) bool {
	if origin == "" {
		return true
	}

	s.mu.RLock()
	allowedOrigins := append([]string(nil), s.allowedOrigins...)
	s.mu.RUnlock()

	if len(allowedOrigins) == 0 {
		return sameOrigin(origin, host)
	}
	return types.OriginAllowed(allowedOrigins, origin)
}

func sameOrigin(origin string, host string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(types.StripHostPort(parsed.Host), types.StripHostPort(host))
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *clientConn) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *clientConn) writeControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(closeGrace))
}

// Package transport is the HTTP/websocket layer: chi routes "/",
// "/static/*", "/ws" (grounded on
// _examples/titpetric-vuego/server/tour/handler.go's r.Get/r.Post usage),
// and gorilla/websocket upgrades "/ws" connections. The broadcaster is a
// single goroutine draining a channel of outbound JSON and fanning it
// out to a peer registry, dropping peers whose send fails.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/knitj/knitj/knitjerr"
)

// Frame is a server->client or client->server websocket message. Its
// "kind" field discriminates the shape.
type Frame map[string]interface{}

// InboundHandler processes one client->server frame, dispatched by its
// "kind" field. Implementations return a knitjerr.KindProtocol error for
// an unrecognized kind.
type InboundHandler func(kind string, frame Frame) error

// Server owns the HTTP router, a peer registry, and the broadcaster's
// outbound channel.
type Server struct {
	router   chi.Router
	upgrader websocket.Upgrader

	indexHTML func() string
	staticDir http.Dir

	mu    sync.Mutex
	peers map[*peer]struct{}

	outbound chan Frame
	inbound  InboundHandler
}

type peer struct {
	conn *websocket.Conn
	send chan Frame
}

// New builds a Server. indexHTML is called on every "/" request to
// produce the current page (the coordinator's persisted output, so this
// simply serves that same rendering). staticDir serves "/static/*".
// inbound dispatches parsed client frames.
func New(indexHTML func() string, staticDir string, inbound InboundHandler) *Server {
	s := &Server{
		indexHTML: indexHTML,
		staticDir: http.Dir(staticDir),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		peers:     map[*peer]struct{}{},
		outbound:  make(chan Frame, 256),
		inbound:   inbound,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.serveIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(s.staticDir)))
	r.Get("/ws", s.serveWS)
	s.router = r
	return s
}

// Handler returns the root http.Handler to pass to http.Serve.
func (s *Server) Handler() http.Handler { return s.router }

// Listen scans [low, high] on localhost for the first free TCP port,
// binds it, and returns the bound listener and port; the first free
// port wins. Exhausting the range returns a knitjerr.KindBind error.
func (s *Server) Listen(low, high int) (net.Listener, int, error) {
	for port := low; port <= high; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, knitjerr.New(knitjerr.KindBind, fmt.Sprintf("no free port in range %d-%d", low, high))
}

// Serve blocks, handling HTTP/websocket requests on ln until ln is closed
// or the process exits. Run independently of Run, which only drives the
// broadcaster.
func (s *Server) Serve(ln net.Listener) error {
	return http.Serve(ln, s.router)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(s.indexHTML()))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Warningf("transport: websocket upgrade failed: %v", err)
		return
	}
	p := &peer{conn: conn, send: make(chan Frame, 16)}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	go s.writePump(p)
	s.readPump(p)
}

func (s *Server) readPump(p *peer) {
	defer s.dropPeer(p)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			klog.Warningf("transport: malformed inbound frame: %v", err)
			continue
		}
		kind, _ := frame["kind"].(string)
		if err := s.inbound(kind, frame); err != nil {
			klog.Errorf("transport: %v", err)
		}
	}
}

func (s *Server) writePump(p *peer) {
	for frame := range p.send {
		if err := p.conn.WriteJSON(frame); err != nil {
			s.dropPeer(p)
			return
		}
	}
}

func (s *Server) dropPeer(p *peer) {
	s.mu.Lock()
	if _, ok := s.peers[p]; ok {
		delete(s.peers, p)
		close(p.send)
	}
	s.mu.Unlock()
	_ = p.conn.Close()
}

// Broadcast queues frame for delivery to every connected peer on a
// buffered channel of 256 frames; it blocks only while that buffer is
// full. Delivery happens on the broadcaster goroutine started by Run.
func (s *Server) Broadcast(frame Frame) {
	s.outbound <- frame
}

// Run is the single broadcaster goroutine: it serializes each queued
// frame once and fans it out to every peer's send channel, dropping (and
// closing) any peer whose buffer is full rather than blocking the whole
// broadcast on one slow client.
func (s *Server) Run() {
	for frame := range s.outbound {
		s.mu.Lock()
		for p := range s.peers {
			select {
			case p.send <- frame:
			default:
				delete(s.peers, p)
				close(p.send)
				_ = p.conn.Close()
			}
		}
		s.mu.Unlock()
	}
}

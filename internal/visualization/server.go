package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// Server serves live views of one nodenet and lets a browser step it.
type Server struct {
	net        *nodenet.Nodenet
	listenAddr string
	refresh    int
	httpServer *http.Server
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server for n. An empty listenAddr picks a free
// localhost port. A positive refresh makes the HTML page reload itself.
func NewServer(n *nodenet.Nodenet, listenAddr string, refresh int) *Server {
	if listenAddr == "" {
		listenAddr = "localhost:0"
	}
	return &Server{net: n, listenAddr: listenAddr, refresh: refresh}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /graph.dot", s.handleDOT)
	mux.HandleFunc("GET /api/nodespace", s.handleNodespace)
	mux.HandleFunc("POST /api/step", s.handleStep)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	<-stopped
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// view reads the nodespace named by the "ns" query parameter, restricted
// to the x1/x2/y1/y2 area when all four are given.
func (s *Server) view(r *http.Request) (nodenet.NodespaceView, error) {
	q := r.URL.Query()
	var area *nodenet.Area
	if q.Has("x1") && q.Has("x2") && q.Has("y1") && q.Has("y2") {
		var coords [4]float64
		for i, key := range []string{"x1", "x2", "y1", "y2"} {
			v, err := strconv.ParseFloat(q.Get(key), 64)
			if err != nil {
				return nodenet.NodespaceView{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nodenet.NodespaceView{}, fmt.Errorf("invalid %s: %s is not finite", key, q.Get(key))
			}
			coords[i] = v
		}
		area = &nodenet.Area{X1: coords[0], X2: coords[1], Y1: coords[2], Y2: coords[3]}
	}
	return s.net.GetNodespaceData(q.Get("ns"), area)
}

func viewError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, nodenet.ErrNodespaceNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		viewError(w, err)
		return
	}
	html, err := RenderHTML(view, s.refresh)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		viewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(RenderDOT(view)))
}

func (s *Server) handleNodespace(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		viewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// handleStep advances the nodenet by one step and returns the new view.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if err := s.net.Step(r.Context()); err != nil {
		http.Error(w, "step error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.handleNodespace(w, r)
}

// Package web exposes an explored state graph over HTTP for the external
// visualizer. The core contract is the JSON graph; the index page is only a
// convenience.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/jeffa5/toy-crdt/explore"
)

// Server serves a single exploration result until closed.
type Server struct {
	graph explore.Graph
	ln    net.Listener
	srv   *http.Server
}

func NewServer(bind string, graph explore.Graph) (*Server, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	s := &Server{graph: graph, ln: ln}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/graph.dot", s.handleDOT)
	s.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Addr is the bound listen address, useful when binding to port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until the server is closed.
func (s *Server) Serve() error {
	err := s.srv.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	err := s.srv.Close()
	// srv.Close already closed the listener it was serving on.
	if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, cerr)
	}
	return err
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.graph); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := s.graph.WriteDOT(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexPage,
		s.graph.RunID, s.graph.Semantics, s.graph.Discipline,
		len(s.graph.Nodes), len(s.graph.Edges), len(s.graph.ViolationPath))
}

const indexPage = `<!doctype html>
<html>
<head><title>toy-crdt state graph</title></head>
<body>
<h1>toy-crdt state graph</h1>
<p>run %s, semantics %s, delivery %s</p>
<p>%d states, %d transitions, violation path length %d</p>
<ul>
<li><a href="/api/graph">graph as JSON</a></li>
<li><a href="/api/graph.dot">graph as Graphviz DOT</a></li>
</ul>
</body>
</html>
`

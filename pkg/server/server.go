// Package server exposes the Entropy world over HTTP and WebSocket.
//
// The server is a thin consumer of pkg/world: every route maps onto one
// operation, credentials travel as HTTP Basic (username = decimal player
// id), and payloads are JSON except the raw-bytes and MessagePack node
// endpoints.
//
// Routes:
//
//	POST /player                  register (no auth)
//	GET  /player                  verify credentials
//	GET  /player/{id}             public player info (no auth)
//	GET  /player/guest            list own guests
//	GET  /player/guest/spawn      spawn the free guest
//	GET  /node/{x}/{y}            node as JSON (no auth)
//	GET  /node/bytes/{x}/{y}      node cell array, octet-stream (no auth)
//	GET  /node/msgpack/{x}/{y}    node cell array, MessagePack (no auth)
//	GET  /guest/{gid}             own guest
//	POST /guest/walk/{gid}        walk
//	POST /guest/harvest/{gid}     harvest
//	POST /guest/heat/{gid}        heat
//	POST /guest/arrange/{gid}     arrange
//	GET  /guest/detect/{gid}      detect
//	GET  /ws                      WebSocket command stream
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/entropy-world/entropy/pkg/world"
)

// shutdownGrace bounds how long Run waits for in-flight requests after
// its context is cancelled.
const shutdownGrace = 10 * time.Second

// Server is the HTTP boundary of an Entropy world.
type Server struct {
	world *world.World
	log   *logrus.Entry
	http  *http.Server
}

// New builds a server bound to addr, serving the given world.
func New(w *world.World, addr string) *Server {
	s := &Server{
		world: w,
		log:   logrus.WithField("component", "server"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route tree, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("http server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)

	r.HandleFunc("/player", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/player", s.handleVerifyPlayer).Methods(http.MethodGet)
	r.HandleFunc("/player/guest", s.handleListGuest).Methods(http.MethodGet)
	r.HandleFunc("/player/guest/spawn", s.handleSpawnGuest).Methods(http.MethodGet)
	r.HandleFunc("/player/{id:-?[0-9]+}", s.handlePlayerPublic).Methods(http.MethodGet)

	r.HandleFunc("/node/bytes/{x:-?[0-9]+}/{y:-?[0-9]+}", s.handleNodeBytes).Methods(http.MethodGet)
	r.HandleFunc("/node/msgpack/{x:-?[0-9]+}/{y:-?[0-9]+}", s.handleNodeMsgpack).Methods(http.MethodGet)
	r.HandleFunc("/node/{x:-?[0-9]+}/{y:-?[0-9]+}", s.handleNode).Methods(http.MethodGet)

	r.HandleFunc("/guest/walk/{gid:-?[0-9]+}", s.handleWalk).Methods(http.MethodPost)
	r.HandleFunc("/guest/harvest/{gid:-?[0-9]+}", s.handleHarvest).Methods(http.MethodPost)
	r.HandleFunc("/guest/heat/{gid:-?[0-9]+}", s.handleHeat).Methods(http.MethodPost)
	r.HandleFunc("/guest/arrange/{gid:-?[0-9]+}", s.handleArrange).Methods(http.MethodPost)
	r.HandleFunc("/guest/detect/{gid:-?[0-9]+}", s.handleDetect).Methods(http.MethodGet)
	r.HandleFunc("/guest/{gid:-?[0-9]+}", s.handleGetGuest).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	r.Use(s.logMiddleware)
	return r
}

// logMiddleware logs one line per request at debug level.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start),
		}).Debug("request")
	})
}

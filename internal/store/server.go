package store

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"eris/internal/eris"
	"eris/internal/identity"
)

// Server serves a block store over HTTP:
//
//	GET  /id             the node id
//	GET  /blocks/{ref}   one ciphertext block
//	HEAD /blocks/{ref}
//	PUT  /blocks/{ref}   store a block under its reference
//	POST /blocks         store a block, reference derived server-side
//
// PUT and POST re-derive the reference from the body, so the server
// never stores a block that would fail verification on read.
type Server struct {
	id    string
	store eris.Store
	log   *logrus.Logger
}

func NewServer(store eris.Store) *Server {
	id := identity.Random()
	if idStore, ok := store.(identity.Provider); ok {
		id = idStore.ID()
	}
	return &Server{
		id:    id,
		store: store,
	}
}

// WithLogger sets the logger used to record requests and internal
// errors.
func (s *Server) WithLogger(log *logrus.Logger) *Server {
	s.log = log
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /id", s.handleGetID)

	mux.HandleFunc("POST /blocks", s.handlePost)
	mux.HandleFunc("GET /blocks/{ref}", s.handleGet)
	mux.HandleFunc("HEAD /blocks/{ref}", s.handleHead)
	mux.HandleFunc("PUT /blocks/{ref}", s.handlePut)

	if s.log == nil {
		return mux
	}
	return s.logRequests(mux)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleGetID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.id))
}

// readBlock reads a request body bounded by the largest block size.
func readBlock(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	block, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(eris.BlockSize32KiB)))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, false
	}
	return block, true
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	block, ok := readBlock(w, r)
	if !ok {
		return
	}
	ref, err := eris.ReferenceOf(block)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := s.store.Put(r.Context(), ref, block); err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ref.String()))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	ref, err := eris.ParseReference(r.PathValue("ref"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	block, ok := readBlock(w, r)
	if !ok {
		return
	}
	derived, err := eris.ReferenceOf(block)
	if err != nil || derived != ref {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := s.store.Put(r.Context(), ref, block); err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ref.String()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	block, ok := s.getBlock(w, r)
	if !ok {
		return
	}
	s.blockHeaders(w, r.PathValue("ref"), len(block))
	w.WriteHeader(http.StatusOK)
	w.Write(block)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	block, ok := s.getBlock(w, r)
	if !ok {
		return
	}
	s.blockHeaders(w, r.PathValue("ref"), len(block))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ref, err := eris.ParseReference(r.PathValue("ref"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, false
	}
	block, err := s.store.Get(r.Context(), ref)
	if errors.Is(err, eris.ErrBlockNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.serverError(w, err)
		return nil, false
	}
	return block, true
}

func (s *Server) blockHeaders(w http.ResponseWriter, ref string, size int) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "immutable")
	w.Header().Set("ETag", ref)
	w.Header().Set("Content-Length", strconv.Itoa(size))
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	if s.log != nil {
		s.log.WithError(err).Error("block store request failed")
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"

	"github.com/lanshare/lanshare/internal/artifact"
	"github.com/lanshare/lanshare/internal/blob"
)

// Server wires the hub, the ingestion coordinator, and the blob sink behind
// the HTTP surface. One Server owns one broadcast domain.
type Server struct {
	cfg         *Config
	hub         *Hub
	coordinator *artifact.Coordinator
	sink        *blob.DiskSink
	deriver     artifact.Deriver
	origins     *originChecker
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewServer constructs the HTTP boundary over its collaborators. The hub
// must already be running (or be started before the first request).
func NewServer(cfg *Config, hub *Hub, coordinator *artifact.Coordinator, sink *blob.DiskSink, deriver artifact.Deriver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins := newOriginChecker(cfg.AllowedOrigins, logger)
	return &Server{
		cfg:         cfg,
		hub:         hub,
		coordinator: coordinator,
		sink:        sink,
		deriver:     deriver,
		origins:     origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		logger: logger,
	}
}

// uploadResponse is the JSON body returned by the upload endpoint.
type uploadResponse struct {
	Message string              `json:"message"`
	File    artifact.PublicView `json:"file"`
}

// handleUpload accepts one multipart file, stores it through the blob sink,
// and runs it through the ingestion coordinator. The uploader gets a
// definitive new/duplicate/failure response; connected clients get exactly
// one file-shared event on success and nothing on failure.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file part", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	displayName := filepath.Base(filepath.FromSlash(header.Filename))
	if err := artifact.ValidateFilename(displayName); err != nil {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	// An aborted upload fails here, before any record or broadcast exists.
	result, err := s.sink.Write(file, displayName)
	if err != nil {
		s.logger.Error("blob write failed", "filename", displayName, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	meta := artifact.BlobMeta{
		DisplayName: displayName,
		StoredName:  result.StoredName,
		StoragePath: result.StoragePath,
		SizeBytes:   result.SizeBytes,
		Identifier:  s.deriver.Identifier(result.StoredName, result.ContentDigest),
	}

	art, isNew, err := s.coordinator.Ingest(r.Context(), meta)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidFilename) || errors.Is(err, artifact.ErrEmptyIdentifier) {
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		s.logger.Error("ingestion failed", "identifier", meta.Identifier, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	message := "File already exists"
	if isNew {
		message = "File uploaded successfully"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(uploadResponse{Message: message, File: art.View()}); err != nil {
		s.logger.Warn("write upload response", "error", err)
	}
}

// handleWebSocket upgrades the request and hands the connection to the hub,
// which transitions the session to Open and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	session := NewSession(conn, s.hub, r.RemoteAddr, s.cfg, s.logger)
	s.hub.Register(session)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("lanshare server is running\n"))
}

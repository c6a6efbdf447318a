package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: the chat page, health check, WebSocket endpoint, file upload, and
// static blob serving. Blobs are served under the same /uploads/ prefix the
// broadcast payload's path field points at.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.sink.Dir()))))
	return mux
}

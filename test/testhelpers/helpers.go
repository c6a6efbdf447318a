// Package testhelpers provides shared utilities for lanshare integration
// tests: assembling a full backend over temp storage, dialing WebSocket
// clients, and uploading files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanshare/lanshare/internal/artifact"
	"github.com/lanshare/lanshare/internal/blob"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/internal/storage/sqlite"
)

// Backend is a fully wired lanshare instance behind an httptest server.
type Backend struct {
	TS  *httptest.Server
	Hub *server.Hub
	Cfg *server.Config
}

// NewBackend assembles a backend over temp storage. Cleanup is registered
// on t.
func NewBackend(t *testing.T, mutate func(*server.Config)) *Backend {
	t.Helper()

	cfg := server.NewConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "lanshare.db")
	cfg.UploadDir = t.TempDir()
	cfg.AllowedOrigins = []string{"*"}
	if mutate != nil {
		mutate(cfg)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink, err := blob.NewDiskSink(cfg.UploadDir)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	deriver, err := artifact.NewDeriver(cfg.IdentifierStrategy)
	if err != nil {
		t.Fatalf("create deriver: %v", err)
	}

	hub := server.NewHub(nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	coordinator := artifact.NewCoordinator(store, hub, nil)
	srv := server.NewServer(cfg, hub, coordinator, sink, deriver, nil)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &Backend{TS: ts, Hub: hub, Cfg: cfg}
}

// WSURL returns the backend's WebSocket endpoint URL.
func (b *Backend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.TS.URL, "http") + "/ws"
}

// Dial connects a WebSocket client and waits until the hub has registered
// it, so a following broadcast is guaranteed to reach it.
func (b *Backend) Dial(t *testing.T) *websocket.Conn {
	t.Helper()

	before := b.Hub.SessionCount()
	conn, _, err := websocket.DefaultDialer.Dial(b.WSURL(), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", b.WSURL(), err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	WaitForSessions(t, b.Hub, before+1)
	return conn
}

// WaitForSessions polls until the hub reports want live sessions.
func WaitForSessions(t *testing.T, hub *server.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SessionCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session count = %d, want %d", hub.SessionCount(), want)
}

// SendEvent writes one envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s event: %v", event, err)
	}
}

// ReadEnvelopes reads one frame and splits it into envelopes (the write
// pump batches queued events newline-separated into a single frame). It
// reports ok=false on timeout or close.
func ReadEnvelopes(t *testing.T, conn *websocket.Conn, timeout time.Duration) ([]server.Envelope, bool) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var envelopes []server.Envelope
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var env server.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			t.Fatalf("unmarshal envelope %q: %v", line, err)
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, true
}

// ReadEvent reads envelopes until one matches the wanted event name,
// failing the test if it does not arrive in time.
func ReadEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		envelopes, ok := ReadEnvelopes(t, conn, time.Until(deadline))
		if !ok {
			break
		}
		for _, env := range envelopes {
			if env.Event == event {
				return env
			}
		}
	}
	t.Fatalf("event %q never arrived", event)
	return server.Envelope{}
}

// Upload posts one multipart file to the backend and returns the response.
func Upload(t *testing.T, baseURL, filename string, content []byte) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(baseURL+"/upload", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	return resp
}

// AssertStatusCode fails the test if the response status differs from
// expected.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("status = %d, want %d", resp.StatusCode, expected)
	}
}

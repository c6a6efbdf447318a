package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lanshare/lanshare/internal/artifact"
	"github.com/lanshare/lanshare/internal/blob"
	"github.com/lanshare/lanshare/internal/storage/sqlite"
)

// newTestBackend assembles a full server over a temp store and upload dir
// and returns its HTTP test server.
func newTestBackend(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()

	cfg := NewConfig()
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

	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	coordinator := artifact.NewCoordinator(store, hub, nil)
	srv := NewServer(cfg, hub, coordinator, sink, deriver, nil)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, baseURL, filename string, content []byte) *http.Response {
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

func decodeUploadResponse(t *testing.T, resp *http.Response) uploadResponse {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var body uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return body
}

func TestUploadNewFile(t *testing.T) {
	ts := newTestBackend(t, nil)

	content := bytes.Repeat([]byte("a"), 5000)
	resp := upload(t, ts.URL, "report.pdf", content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := decodeUploadResponse(t, resp)
	if body.Message != "File uploaded successfully" {
		t.Errorf("message = %q, want \"File uploaded successfully\"", body.Message)
	}
	if !strings.HasSuffix(body.File.Filename, "-report.pdf") {
		t.Errorf("filename = %q, want suffix -report.pdf", body.File.Filename)
	}
	if body.File.Size != 5000 {
		t.Errorf("size = %d, want 5000", body.File.Size)
	}
	if !strings.HasPrefix(body.File.Path, "/uploads/") {
		t.Errorf("path = %q, want /uploads/ prefix", body.File.Path)
	}
	if body.File.UploadDate.IsZero() {
		t.Error("uploadDate missing")
	}
}

func TestUploadDuplicateContent(t *testing.T) {
	ts := newTestBackend(t, nil)

	content := []byte("identical bytes")
	first := decodeUploadResponse(t, upload(t, ts.URL, "report.pdf", content))

	// Same bytes under a different name still dedupe under the content
	// strategy.
	resp := upload(t, ts.URL, "copy-of-report.pdf", content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	second := decodeUploadResponse(t, resp)

	if second.Message != "File already exists" {
		t.Errorf("message = %q, want \"File already exists\"", second.Message)
	}
	if second.File.Filename != first.File.Filename ||
		second.File.Path != first.File.Path ||
		second.File.Size != first.File.Size ||
		!second.File.UploadDate.Equal(first.File.UploadDate) {
		t.Errorf("duplicate returned a different record:\nfirst  %+v\nsecond %+v", first.File, second.File)
	}
}

func TestUploadNameStrategySkipsContentDedup(t *testing.T) {
	ts := newTestBackend(t, func(cfg *Config) {
		cfg.IdentifierStrategy = "name"
	})

	content := []byte("identical bytes")
	first := decodeUploadResponse(t, upload(t, ts.URL, "a.txt", content))
	time.Sleep(5 * time.Millisecond) // distinct generated-name timestamps
	second := decodeUploadResponse(t, upload(t, ts.URL, "b.txt", content))

	if first.Message != "File uploaded successfully" || second.Message != "File uploaded successfully" {
		t.Errorf("name strategy deduplicated identical content: %q / %q", first.Message, second.Message)
	}
}

func TestUploadMissingFilePart(t *testing.T) {
	ts := newTestBackend(t, nil)

	resp, err := http.Post(ts.URL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadRejectsNonPost(t *testing.T) {
	ts := newTestBackend(t, nil)

	resp, err := http.Get(ts.URL + "/upload")
	if err != nil {
		t.Fatalf("GET /upload: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestUploadedBlobIsServedStatically(t *testing.T) {
	ts := newTestBackend(t, nil)

	content := []byte("fetch me back")
	body := decodeUploadResponse(t, upload(t, ts.URL, "notes.txt", content))

	resp, err := http.Get(ts.URL + body.File.Path)
	if err != nil {
		t.Fatalf("GET %s: %v", body.File.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("served bytes differ from uploaded bytes")
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestBackend(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHomePage(t *testing.T) {
	ts := newTestBackend(t, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !bytes.Contains(page, []byte("lanshare")) {
		t.Error("chat page does not mention lanshare")
	}

	missing, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	_ = missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", missing.StatusCode)
	}
}

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanshare/lanshare/internal/artifact"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/test/testhelpers"
)

type clientAndName struct {
	conn *websocket.Conn
	name string
}

type uploadBody struct {
	Message string              `json:"message"`
	File    artifact.PublicView `json:"file"`
}

func decodeUpload(t *testing.T, resp *http.Response) uploadBody {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var body uploadBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return body
}

func TestUploadNotifiesEveryConnectedClient(t *testing.T) {
	backend := testhelpers.NewBackend(t, nil)

	alice := backend.Dial(t)
	bob := backend.Dial(t)

	content := bytes.Repeat([]byte("p"), 5000)
	resp := testhelpers.Upload(t, backend.TS.URL, "report.pdf", content)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	body := decodeUpload(t, resp)

	if body.Message != "File uploaded successfully" {
		t.Errorf("message = %q, want \"File uploaded successfully\"", body.Message)
	}
	if body.File.Size != 5000 {
		t.Errorf("response size = %d, want 5000", body.File.Size)
	}

	for _, conn := range []*clientAndName{{alice, "alice"}, {bob, "bob"}} {
		env := testhelpers.ReadEvent(t, conn.conn, server.EventFileShared, 2*time.Second)
		var view artifact.PublicView
		if err := json.Unmarshal(env.Data, &view); err != nil {
			t.Fatalf("%s: unmarshal view: %v", conn.name, err)
		}
		if view.Size != 5000 {
			t.Errorf("%s received size %d, want 5000", conn.name, view.Size)
		}
		if view.Path != body.File.Path {
			t.Errorf("%s received path %q, want %q", conn.name, view.Path, body.File.Path)
		}
	}
}

func TestDuplicateUploadNotifiesWithSameRecord(t *testing.T) {
	backend := testhelpers.NewBackend(t, nil)
	client := backend.Dial(t)

	content := []byte("identical bytes")
	first := decodeUpload(t, testhelpers.Upload(t, backend.TS.URL, "report.pdf", content))
	testhelpers.ReadEvent(t, client, server.EventFileShared, 2*time.Second)

	resp := testhelpers.Upload(t, backend.TS.URL, "report.pdf", content)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	second := decodeUpload(t, resp)

	if second.Message != "File already exists" {
		t.Errorf("message = %q, want \"File already exists\"", second.Message)
	}

	// One more event fires for the duplicate, describing the original
	// record.
	env := testhelpers.ReadEvent(t, client, server.EventFileShared, 2*time.Second)
	var view artifact.PublicView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if view.Path != first.File.Path {
		t.Errorf("duplicate event path = %q, want %q", view.Path, first.File.Path)
	}
}

func TestUploadedFileRoundTrip(t *testing.T) {
	backend := testhelpers.NewBackend(t, nil)

	content := []byte("round trip payload")
	body := decodeUpload(t, testhelpers.Upload(t, backend.TS.URL, "data.bin", content))

	resp, err := http.Get(backend.TS.URL + body.File.Path)
	if err != nil {
		t.Fatalf("GET %s: %v", body.File.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("fetched blob differs from uploaded content")
	}
}

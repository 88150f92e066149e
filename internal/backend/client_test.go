package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalviis/factory-bridge/internal/config"
)

func TestClient_Send(t *testing.T) {
	var gotPath, gotMethod, gotCT, gotBody string
	var gotClose bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotClose = r.Close
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(config.BackendConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, StreamTimeout: time.Second})
	resp, err := c.Send(context.Background(), []byte(`{"model":"m"}`), false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Body.Close()

	if gotMethod != http.MethodPost || gotPath != "/v1/messages" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotCT != "application/json" {
		t.Errorf("unexpected Content-Type %q", gotCT)
	}
	if gotBody != `{"model":"m"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
	if gotClose {
		t.Error("buffered requests should not force Connection: close")
	}

	resp, err = c.Send(context.Background(), []byte(`{}`), true)
	if err != nil {
		t.Fatalf("streaming Send failed: %v", err)
	}
	resp.Body.Close()
	if !gotClose {
		t.Error("streaming requests should send Connection: close")
	}
}

func TestClient_SendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.BackendConfig{BaseURL: url, Timeout: time.Second, StreamTimeout: time.Second})
	if _, err := c.Send(context.Background(), []byte(`{}`), false); err == nil {
		t.Error("expected error for unreachable backend")
	}
}

func TestClient_BufferedTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, StreamTimeout: time.Second})
	if _, err := c.Send(context.Background(), []byte(`{}`), false); err == nil {
		t.Error("expected timeout error")
	}
}

package cloudevent

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()
	event := New("pipeline.failed", "pipeline/engine", "run-1", "evt-1", map[string]any{"status": "failed"})

	if event.SpecVersion != "1.0" {
		t.Errorf("expected specversion 1.0, got %q", event.SpecVersion)
	}
	if event.DataContentType != "application/json" {
		t.Errorf("unexpected content type %q", event.DataContentType)
	}
	if event.Time.IsZero() {
		t.Error("expected event time to be set")
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	var gotType, gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Ce-Type")
		gotSignature = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSender(5 * time.Second)
	event := New("pipeline.succeeded", "pipeline/engine", "run-1", "evt-1", map[string]any{"ok": true})

	if err := sender.Send(context.Background(), srv.URL, event, "secret"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotType != "pipeline.succeeded" {
		t.Errorf("Ce-Type = %q", gotType)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Errorf("signature mismatch: got %q want %q", gotSignature, want)
	}
}

func TestSend_NoKeyNoSignature(t *testing.T) {
	t.Parallel()

	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed = r.Header.Get("X-Signature-256") != ""
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewSender(5 * time.Second)
	if err := sender.Send(context.Background(), srv.URL, New("t", "s", "sub", "id", nil), ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if signed {
		t.Error("unexpected signature without signing key")
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewSender(5 * time.Second)
	err := sender.Send(context.Background(), srv.URL, New("t", "s", "sub", "id", nil), "")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", httpErr.StatusCode)
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"400", &HTTPError{StatusCode: 400}, true},
		{"499", &HTTPError{StatusCode: 499}, true},
		{"500", &HTTPError{StatusCode: 500}, false},
		{"302", &HTTPError{StatusCode: 302}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsClientError(tt.err); got != tt.want {
				t.Errorf("IsClientError() = %v, want %v", got, tt.want)
			}
		})
	}
}

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name       string
		server     string
		opts       Options
		wantPrefix string
	}{
		{"with http prefix", "http://localhost:4850", Options{}, "http://localhost:4850"},
		{"with https prefix", "https://localhost:4850", Options{}, "https://localhost:4850"},
		{"without prefix", "localhost:4850", Options{}, "http://localhost:4850"},
		{"trailing slash", "http://localhost:4850/", Options{}, "http://localhost:4850"},
		{"insecure defaults to https", "localhost:4850", Options{Insecure: true}, "https://localhost:4850"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewHTTPClient(tt.server, tt.opts)
			if err != nil {
				t.Fatalf("NewHTTPClient: %v", err)
			}
			if client.BaseURL() != tt.wantPrefix {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.wantPrefix)
			}
		})
	}
}

func TestNewHTTPClient_MissingCAFile(t *testing.T) {
	_, err := NewHTTPClient("localhost:4850", Options{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	if err == nil {
		t.Error("expected error for missing CA file")
	}
}

func envelopeHandler(t *testing.T, status int, body map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode: %v", err)
		}
	}
}

func TestHTTPClient_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "uacore-cli/") {
			t.Errorf("User-Agent = %q", ua)
		}
		if id := r.Header.Get(HeaderRequestID); len(id) != 26 {
			t.Errorf("request id = %q, want a ULID", id)
		}
		if r.URL.Path != "/diagnostics/summary" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"code":"OK","message":"Success"}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	resp, err := client.Get(context.Background(), "/diagnostics/summary")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHTTPClient_CallDecodesData(t *testing.T) {
	server := httptest.NewServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code":       "OK",
		"message":    "Success",
		"request_id": "01J0000000000000000000000",
		"data":       map[string]any{"purged": 3},
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, Options{})
	var out struct {
		Purged int `json:"purged"`
	}
	if err := client.Call(context.Background(), http.MethodPost, "/admin/purge", nil, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Purged != 3 {
		t.Errorf("purged = %d, want 3", out.Purged)
	}
}

func TestHTTPClient_CallAPIError(t *testing.T) {
	server := httptest.NewServer(envelopeHandler(t, http.StatusNotFound, map[string]any{
		"code":       "UA-SES-4040",
		"message":    "session id invalid",
		"request_id": "req-1",
		"details":    "id 7",
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, Options{})
	err := client.Call(context.Background(), http.MethodGet, "/diagnostics/sessions/7", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "UA-SES-4040" {
		t.Errorf("APIError = %+v", apiErr)
	}
	for _, want := range []string{"UA-SES-4040", "session id invalid", "id 7", "req-1"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestHTTPClient_CallPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, Options{})
	err := client.Call(context.Background(), http.MethodGet, "/health", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status 502", err)
	}
}

func TestHTTPClient_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["reason"] != "test" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"code":"OK","message":"Success"}`))
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, Options{})
	if err := client.Call(context.Background(), http.MethodPost, "/admin/purge", map[string]string{"reason": "test"}, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestHTTPClient_InsecureTLS(t *testing.T) {
	server := httptest.NewTLSServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code": "OK",
		"data": map[string]string{"status": "healthy"},
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, Options{Insecure: true})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	var out map[string]string
	if err := client.Call(context.Background(), http.MethodGet, "/health", nil, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["status"] != "healthy" {
		t.Errorf("status = %q", out["status"])
	}
}

func TestHTTPClient_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "uacore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "s.sock")

	ln, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewUnstartedServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code": "OK",
		"data": map[string]string{"status": "ready"},
	}))
	server.Listener.Close()
	server.Listener = ln
	server.Start()
	defer server.Close()

	client, err := NewHTTPClient("unix://"+socket, Options{})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if client.BaseURL() != "http://unix" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}
	var out map[string]string
	if err := client.Call(context.Background(), http.MethodGet, "/ready", nil, &out); err != nil {
		t.Fatalf("Call over socket: %v", err)
	}
	if out["status"] != "ready" {
		t.Errorf("status = %q", out["status"])
	}

	if _, err := NewHTTPClient("unix://", Options{}); err == nil {
		t.Error("expected error for empty socket path")
	}
}

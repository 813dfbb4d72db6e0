package llm

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"no endpoint", Config{Model: "ai/gemma3"}, true},
		{"no model", Config{SocketPath: "/tmp/x.sock"}, true},
		{"socket", Config{SocketPath: "/tmp/x.sock", Model: "ai/gemma3"}, false},
		{"base url", Config{BaseURL: "http://localhost:12434/v1", Model: "ai/gemma3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_OverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dmr.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix socket: %v", err)
	}

	var got chatRequest
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exp/vDD4.40/engines/llama.cpp/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  Paris.  "}}]}`))
	})}
	go server.Serve(listener)
	defer server.Close()

	client, err := New(Config{SocketPath: socketPath, Model: "ai/gemma3", MaxTokens: 256})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	answer, err := client.Complete(t.Context(), []Message{
		{Role: RoleSystem, Content: "Answer briefly."},
		{Role: RoleUser, Content: "Capital of France?"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if answer != "Paris." {
		t.Errorf("Complete() = %q, want %q", answer, "Paris.")
	}
	if got.Model != "ai/gemma3" || got.MaxTokens != 256 || len(got.Messages) != 2 {
		t.Errorf("request = %+v", got)
	}
	if got.Messages[0].Role != RoleSystem {
		t.Errorf("first message role = %q, want system", got.Messages[0].Role)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusServiceUnavailable, "busy"},
		{"api error", http.StatusOK, `{"error":{"message":"model not found"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			client, _ := New(Config{BaseURL: server.URL, Model: "m"})
			if _, err := client.Complete(t.Context(), []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
				t.Error("Complete() expected error")
			}
		})
	}
}

func TestComplete_NoMessages(t *testing.T) {
	client, _ := New(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	if _, err := client.Complete(t.Context(), nil); err == nil {
		t.Error("Complete(nil) expected error")
	}
}

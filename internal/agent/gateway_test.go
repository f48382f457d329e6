package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotBody completionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "the answer"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0)
	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "question"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply.Text != "the answer" {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", reply.TokensUsed)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Stream {
		t.Error("stream should be false")
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "question" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestCompleteOmittedUsageIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, "k", 0).Complete(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply.TokensUsed != 0 {
		t.Errorf("tokens = %d, want 0", reply.TokensUsed)
	}
}

func TestCompleteFailuresCollapseToUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": [`))
		}},
		{"empty choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", 0).Complete(context.Background(), nil)
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 20*time.Millisecond)
	_, err := c.Complete(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("timeout err = %v, want ErrUnavailable", err)
	}
}

func TestCompleteUnreachableHost(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", time.Second)
	_, err := c.Complete(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

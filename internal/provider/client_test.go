package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthParsesServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"services": map[string]bool{"store": true, "model": false},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	hs, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !hs.Services["store"] || hs.Services["model"] {
		t.Errorf("services = %v", hs.Services)
	}
}

func TestHealthNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("Health on 503 should fail")
	}
}

func TestResearchRoundtrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/research" || r.Method != http.MethodPost {
			t.Errorf("%s %s, want POST /research", r.Method, r.URL.Path)
		}
		var req ResearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Topic != "edge computing" || req.WordCount != 1000 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ResearchResult{
			Content:     "generated article text",
			SourceID:    "vec-42",
			RawResearch: "raw notes",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Research(context.Background(), ResearchRequest{
		Topic:        "edge computing",
		WordCount:    1000,
		Instructions: "Write in an informative style.",
	})
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if res.Content != "generated article text" || res.SourceID != "vec-42" {
		t.Errorf("result = %+v", res)
	}
}

// TestResearchErrorCarriesBody verifies a provider failure surfaces the
// response text verbatim: that text becomes the agent's lastError.
func TestResearchErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("model backend overloaded\n"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Research(context.Background(), ResearchRequest{Topic: "x"})

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %T (%v), want *CallError", err, err)
	}
	if callErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", callErr.StatusCode)
	}
	if callErr.Error() != "model backend overloaded" {
		t.Errorf("Error() = %q, want verbatim trimmed body", callErr.Error())
	}
}

func TestCallErrorEmptyBody(t *testing.T) {
	e := &CallError{StatusCode: 500}
	if e.Error() != "provider returned status 500" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-title" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"title": "Why Edge Computing Wins"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	title, err := c.GenerateTitle(context.Background(), "some content prefix", "edge computing")
	if err != nil {
		t.Fatalf("GenerateTitle: %v", err)
	}
	if title != "Why Edge Computing Wins" {
		t.Errorf("title = %q", title)
	}
}

func TestGenerateTitleEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"title": ""})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.GenerateTitle(context.Background(), "content", "topic"); err == nil {
		t.Fatal("empty title should be an error so the caller can fall back")
	}
}

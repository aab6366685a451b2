package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillforge/quill/internal/agent"
	"github.com/quillforge/quill/internal/analytics"
	"github.com/quillforge/quill/internal/provider"
	"github.com/quillforge/quill/internal/storage"
)

// fakeProvider is a scriptable stand-in for the research service.
type fakeProvider struct {
	healthy       bool
	researchBody  string        // body text returned by /research
	researchFail  int           // non-zero: /research fails with this status
	researchError string        // error body returned on failure
	titleFail     bool          // /generate-title returns 500
	title         string
	researchCalls atomic.Int32
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"services": map[string]bool{"store": f.healthy, "model": f.healthy},
		})
	})
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		f.researchCalls.Add(1)
		if f.researchFail != 0 {
			w.WriteHeader(f.researchFail)
			w.Write([]byte(f.researchError))
			return
		}
		json.NewEncoder(w).Encode(provider.ResearchResult{
			Content:     f.researchBody,
			SourceID:    "vec-1",
			RawResearch: "raw research for " + f.researchBody[:min(20, len(f.researchBody))],
		})
	})
	mux.HandleFunc("/generate-title", func(w http.ResponseWriter, r *http.Request) {
		if f.titleFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"title": f.title})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	pipe  *Pipeline
	store *storage.Store
	fake  *fakeProvider
	agent int64
}

func newHarness(t *testing.T, fake *fakeProvider) *harness {
	t.Helper()

	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })

	defaults := storage.GenerationConfig{
		Provider:        "openai",
		Model:           "gpt-4o-mini",
		Topics:          []string{"go concurrency"},
		WordCountMin:    500,
		WordCountMax:    1500,
		Style:           "informative",
		Tone:            "professional",
		ResearchDepth:   3,
		ResearchEnabled: true,
	}

	id, err := s.CreateAgent(storage.Agent{Name: "writer", Status: agent.StatusReady, Config: defaults})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	srv := fake.server(t)
	client := provider.New(srv.URL)
	m := agent.NewMachine(s, defaults)
	pipe := New(Deps{
		Store:             s,
		Machine:           m,
		Gate:              provider.NewGate(client, time.Second, 1, time.Millisecond),
		Client:            client,
		Analytics:         analytics.New(s),
		GenerationTimeout: 5 * time.Second,
		TitleTimeout:      time.Second,
	})
	return &harness{pipe: pipe, store: s, fake: fake, agent: id}
}

func body(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ", words))
}

func TestRunCompletesJob(t *testing.T) {
	h := newHarness(t, &fakeProvider{
		healthy:      true,
		researchBody: body(612),
		title:        "Mastering Go Concurrency",
	})

	if err := h.pipe.Run(context.Background(), h.agent, Overrides{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	a, err := h.store.GetAgent(h.agent)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if a.Status != agent.StatusIdle {
		t.Errorf("final status = %q, want idle", a.Status)
	}
	if a.LastError != "" {
		t.Errorf("LastError = %q, want empty", a.LastError)
	}

	arts, err := h.store.ListArtifactsByAgent(h.agent, 10)
	if err != nil {
		t.Fatalf("ListArtifactsByAgent: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifact count = %d, want 1", len(arts))
	}
	art := arts[0]
	if art.Status != "completed" {
		t.Errorf("artifact status = %q", art.Status)
	}
	if art.Title != "Mastering Go Concurrency" {
		t.Errorf("title = %q", art.Title)
	}
	if art.WordCount != 612 {
		t.Errorf("word count = %d, want 612 (whitespace-separated tokens)", art.WordCount)
	}
	if art.GeneratedAt.IsZero() {
		t.Error("GeneratedAt should be set")
	}

	rec, err := h.store.GetResearchByArtifact(art.ID)
	if err != nil {
		t.Fatalf("GetResearchByArtifact: %v", err)
	}
	if rec.SourceID != "vec-1" {
		t.Errorf("research SourceID = %q", rec.SourceID)
	}

	if a.Analytics.TotalArtifacts != 1 || a.Analytics.SuccessRatePercent != 100 {
		t.Errorf("analytics = %+v", a.Analytics)
	}
}

func TestStartProbeFailure(t *testing.T) {
	h := newHarness(t, &fakeProvider{healthy: false})

	_, err := h.pipe.Start(context.Background(), h.agent, Overrides{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Start = %v, want ErrProviderUnavailable", err)
	}

	a, _ := h.store.GetAgent(h.agent)
	if a.Status != agent.StatusError {
		t.Errorf("status = %q, want error", a.Status)
	}
	if a.LastError != "provider unavailable" {
		t.Errorf("LastError = %q, want %q", a.LastError, "provider unavailable")
	}

	// Probe failure happens before admission: no artifact, no analytics.
	n, _ := h.store.CountArtifactsByAgent(h.agent, "")
	if n != 0 {
		t.Errorf("artifact count = %d, want 0", n)
	}
	if a.Analytics.SuccessRatePercent != 0 || a.Analytics.TotalArtifacts != 0 {
		t.Errorf("analytics touched before admission: %+v", a.Analytics)
	}
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, &fakeProvider{healthy: true})

	cases := []Overrides{
		{WordCountMin: 1200, WordCountMax: 800},
		{WordCountMin: -5},
		{Topics: []string{"  "}},
	}
	for _, ov := range cases {
		if _, err := h.pipe.Start(context.Background(), h.agent, ov); !errors.Is(err, ErrValidation) {
			t.Errorf("Start(%+v) = %v, want ErrValidation", ov, err)
		}
	}

	// Validation failures never touch the agent.
	a, _ := h.store.GetAgent(h.agent)
	if a.Status != agent.StatusReady {
		t.Errorf("status = %q, want ready", a.Status)
	}
}

func TestStartNoTopics(t *testing.T) {
	h := newHarness(t, &fakeProvider{healthy: true})

	if err := h.store.UpdateAgentConfig(h.agent, storage.GenerationConfig{Style: "informative"}); err != nil {
		t.Fatalf("UpdateAgentConfig: %v", err)
	}

	_, err := h.pipe.Start(context.Background(), h.agent, Overrides{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Start without topics = %v, want ErrValidation", err)
	}
}

// TestStartPersistsOverrides pins the trigger-time defaults update: the
// merged config is stored, so the next unparameterized trigger reuses the
// last overrides.
func TestStartPersistsOverrides(t *testing.T) {
	h := newHarness(t, &fakeProvider{healthy: true, researchBody: body(100), title: "t"})

	ov := Overrides{Topics: []string{"rust ffi"}, Style: "technical", WordCountMin: 800, WordCountMax: 1200}
	job, err := h.pipe.Start(context.Background(), h.agent, ov)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	a, _ := h.store.GetAgent(h.agent)
	if a.Status != agent.StatusResearching {
		t.Errorf("status = %q, want researching", a.Status)
	}
	if len(a.Config.Topics) != 1 || a.Config.Topics[0] != "rust ffi" {
		t.Errorf("persisted topics = %v", a.Config.Topics)
	}
	if a.Config.Style != "technical" || a.Config.WordCountMin != 800 {
		t.Errorf("persisted config = %+v", a.Config)
	}
	// Untouched fields keep their stored values.
	if a.Config.Tone != "professional" {
		t.Errorf("tone = %q, want professional", a.Config.Tone)
	}

	if job.Config.Style != "technical" {
		t.Errorf("job config = %+v", job.Config)
	}
}

func TestStartRefusedWhileBusy(t *testing.T) {
	h := newHarness(t, &fakeProvider{healthy: true, researchBody: body(50), title: "t"})

	if _, err := h.pipe.Start(context.Background(), h.agent, Overrides{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := h.pipe.Start(context.Background(), h.agent, Overrides{})
	if !errors.Is(err, agent.ErrInvalidTransition) {
		t.Fatalf("second Start = %v, want ErrInvalidTransition", err)
	}
}

// TestExecuteProviderFailure: a failed research call puts the agent in
// error with the provider's response text verbatim, fails the placeholder,
// and dilutes the success rate.
func TestExecuteProviderFailure(t *testing.T) {
	h := newHarness(t, &fakeProvider{
		healthy:       true,
		researchFail:  http.StatusBadGateway,
		researchError: "upstream model quota exhausted",
	})

	err := h.pipe.Run(context.Background(), h.agent, Overrides{})
	if err == nil {
		t.Fatal("Run should fail")
	}

	a, _ := h.store.GetAgent(h.agent)
	if a.Status != agent.StatusError {
		t.Errorf("status = %q, want error", a.Status)
	}
	if a.LastError != "upstream model quota exhausted" {
		t.Errorf("LastError = %q, want provider body verbatim", a.LastError)
	}
	if a.LastErrorTime.IsZero() {
		t.Error("LastErrorTime should be set")
	}

	arts, _ := h.store.ListArtifactsByAgent(h.agent, 10)
	if len(arts) != 1 {
		t.Fatalf("artifact count = %d, want 1 (placeholder kept)", len(arts))
	}
	if arts[0].Status != "failed" || arts[0].ErrorCount != 1 {
		t.Errorf("placeholder = status %q errors %d", arts[0].Status, arts[0].ErrorCount)
	}

	if a.Analytics.TotalArtifacts != 0 {
		t.Errorf("TotalArtifacts = %d, want 0", a.Analytics.TotalArtifacts)
	}
}

func TestTitleFallback(t *testing.T) {
	h := newHarness(t, &fakeProvider{
		healthy:      true,
		researchBody: body(200),
		titleFail:    true,
	})

	if err := h.pipe.Run(context.Background(), h.agent, Overrides{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	arts, _ := h.store.ListArtifactsByAgent(h.agent, 1)
	if len(arts) != 1 {
		t.Fatal("no artifact")
	}
	if arts[0].Title != "The Complete Guide to Go Concurrency" {
		t.Errorf("title = %q, want fallback template", arts[0].Title)
	}
	if arts[0].Status != "completed" {
		t.Errorf("title failure must not fail the job, status = %q", arts[0].Status)
	}
}

func TestMergeConfig(t *testing.T) {
	base := storage.GenerationConfig{
		Topics: []string{"a"}, WordCountMin: 500, WordCountMax: 1500,
		Style: "informative", Tone: "professional",
	}

	got := mergeConfig(base, Overrides{Style: "casual", WordCountMax: 900})
	if got.Style != "casual" || got.WordCountMax != 900 {
		t.Errorf("merge result = %+v", got)
	}
	if got.WordCountMin != 500 || got.Tone != "professional" || len(got.Topics) != 1 {
		t.Errorf("zero-valued overrides must not clobber: %+v", got)
	}
}

func TestTargetWordCount(t *testing.T) {
	cases := []struct {
		min, max, want int
	}{
		{500, 1500, 1000},
		{800, 1200, 1000},
		{0, 0, 1000},
		{700, 0, 700},
		{0, 900, 900},
		{1000, 400, 1000}, // inverted bounds: lower wins
	}
	for _, c := range cases {
		got := targetWordCount(storage.GenerationConfig{WordCountMin: c.min, WordCountMax: c.max})
		if got != c.want {
			t.Errorf("targetWordCount(%d, %d) = %d, want %d", c.min, c.max, got, c.want)
		}
	}
}

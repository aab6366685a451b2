package api

import (
	"time"

	"github.com/quillforge/quill/internal/storage"
)

// AgentView is the JSON shape for an agent.
type AgentView struct {
	ID               int64                     `json:"id"`
	Name             string                    `json:"name"`
	Status           string                    `json:"status"`
	Config           storage.GenerationConfig  `json:"config"`
	LastError        string                    `json:"last_error,omitempty"`
	LastErrorTime    string                    `json:"last_error_time,omitempty"`
	Analytics        storage.Analytics         `json:"analytics"`
	IsRegistered     bool                      `json:"is_registered"`
	RegistrationDate string                    `json:"registration_date,omitempty"`
	CreatedAt        string                    `json:"created_at"`
	UpdatedAt        string                    `json:"updated_at"`
}

func agentView(a storage.Agent) AgentView {
	return AgentView{
		ID:               a.ID,
		Name:             a.Name,
		Status:           a.Status,
		Config:           a.Config,
		LastError:        a.LastError,
		LastErrorTime:    fmtOpt(a.LastErrorTime),
		Analytics:        a.Analytics,
		IsRegistered:     a.IsRegistered,
		RegistrationDate: fmtOpt(a.RegistrationDate),
		CreatedAt:        fmtOpt(a.CreatedAt),
		UpdatedAt:        fmtOpt(a.UpdatedAt),
	}
}

// ArtifactView is the JSON shape for an artifact summary.
type ArtifactView struct {
	ID                string   `json:"id"`
	AgentID           int64    `json:"agent_id"`
	Title             string   `json:"title"`
	Body              string   `json:"body,omitempty"`
	WordCount         int      `json:"word_count"`
	Status            string   `json:"status"`
	GeneratedAt       string   `json:"generated_at,omitempty"`
	TopicFocus        []string `json:"topic_focus,omitempty"`
	Style             string   `json:"style,omitempty"`
	GenerationSeconds float64  `json:"generation_seconds"`
	ResearchSeconds   float64  `json:"research_seconds"`
	ErrorCount        int      `json:"error_count"`
}

func artifactView(a storage.Artifact) ArtifactView {
	return ArtifactView{
		ID:                a.ID,
		AgentID:           a.AgentID,
		Title:             a.Title,
		Body:              a.Body,
		WordCount:         a.WordCount,
		Status:            a.Status,
		GeneratedAt:       fmtOpt(a.GeneratedAt),
		TopicFocus:        a.TopicFocus,
		Style:             a.Style,
		GenerationSeconds: a.GenerationSeconds,
		ResearchSeconds:   a.ResearchSeconds,
		ErrorCount:        a.ErrorCount,
	}
}

type researchView struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id,omitempty"`
	Content  string `json:"content"`
}

type artifactDetailView struct {
	ArtifactView
	Research *researchView `json:"research,omitempty"`
}

func fmtOpt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for agents, artifacts, and
// research records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "quill.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	// This also serializes the guarded status writes that back the agent
	// state machine.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in
// ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- time and JSON column helpers ---

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func marshalCounts(v map[string]int) string {
	if v == nil {
		v = map[string]int{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalCounts(s string) (map[string]int, error) {
	if s == "" {
		return map[string]int{}, nil
	}
	var v map[string]int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]int{}
	}
	return v, nil
}

// --- Agents ---

const agentColumns = `id, name, status,
	provider, model, temperature, max_tokens, topics, word_count_min, word_count_max,
	style, tone, instructions, research_depth, research_enabled,
	last_error, last_error_time,
	total_artifacts, total_word_count, average_word_count, success_rate_percent,
	average_generation_seconds, topic_distribution, analytics_updated_at,
	is_registered, registration_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	var topics, topicDist string
	var lastError, lastErrorTime, analyticsUpdated, registrationDate sql.NullString
	var createdAt, updatedAt string
	var researchEnabled, isRegistered int

	err := row.Scan(
		&a.ID, &a.Name, &a.Status,
		&a.Config.Provider, &a.Config.Model, &a.Config.Temperature, &a.Config.MaxTokens,
		&topics, &a.Config.WordCountMin, &a.Config.WordCountMax,
		&a.Config.Style, &a.Config.Tone, &a.Config.Instructions,
		&a.Config.ResearchDepth, &researchEnabled,
		&lastError, &lastErrorTime,
		&a.Analytics.TotalArtifacts, &a.Analytics.TotalWordCount,
		&a.Analytics.AverageWordCount, &a.Analytics.SuccessRatePercent,
		&a.Analytics.AverageGenerationSeconds, &topicDist, &analyticsUpdated,
		&isRegistered, &registrationDate, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}

	a.Config.ResearchEnabled = researchEnabled != 0
	a.IsRegistered = isRegistered != 0
	a.LastError = lastError.String

	if a.Config.Topics, err = unmarshalStrings(topics); err != nil {
		return Agent{}, fmt.Errorf("parsing topics: %w", err)
	}
	if a.Analytics.TopicDistribution, err = unmarshalCounts(topicDist); err != nil {
		return Agent{}, fmt.Errorf("parsing topic_distribution: %w", err)
	}
	if a.LastErrorTime, err = parseNullTime(lastErrorTime); err != nil {
		return Agent{}, fmt.Errorf("parsing last_error_time: %w", err)
	}
	if a.Analytics.LastUpdateTime, err = parseNullTime(analyticsUpdated); err != nil {
		return Agent{}, fmt.Errorf("parsing analytics_updated_at: %w", err)
	}
	if a.RegistrationDate, err = parseNullTime(registrationDate); err != nil {
		return Agent{}, fmt.Errorf("parsing registration_date: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Agent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Agent{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return a, nil
}

// CreateAgent inserts a new agent and returns its id. The caller chooses
// the initial status; the creation endpoint uses "ready".
func (s *Store) CreateAgent(a Agent) (int64, error) {
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`
		INSERT INTO agents (name, status,
			provider, model, temperature, max_tokens, topics, word_count_min, word_count_max,
			style, tone, instructions, research_depth, research_enabled,
			topic_distribution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		a.Name, a.Status,
		a.Config.Provider, a.Config.Model, a.Config.Temperature, a.Config.MaxTokens,
		marshalStrings(a.Config.Topics), a.Config.WordCountMin, a.Config.WordCountMax,
		a.Config.Style, a.Config.Tone, a.Config.Instructions,
		a.Config.ResearchDepth, boolInt(a.Config.ResearchEnabled),
		now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetAgent returns the agent with the given id.
func (s *Store) GetAgent(id int64) (Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgentConfig replaces the agent's stored generation config.
func (s *Store) UpdateAgentConfig(id int64, cfg GenerationConfig) error {
	res, err := s.db.Exec(`
		UPDATE agents SET
			provider = ?, model = ?, temperature = ?, max_tokens = ?, topics = ?,
			word_count_min = ?, word_count_max = ?, style = ?, tone = ?,
			instructions = ?, research_depth = ?, research_enabled = ?, updated_at = ?
		WHERE id = ?`,
		cfg.Provider, cfg.Model, cfg.Temperature, cfg.MaxTokens, marshalStrings(cfg.Topics),
		cfg.WordCountMin, cfg.WordCountMax, cfg.Style, cfg.Tone,
		cfg.Instructions, cfg.ResearchDepth, boolInt(cfg.ResearchEnabled), fmtTime(time.Now()),
		id,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// RegisterAgent sets the registration flag exactly once. Registering an
// already-registered agent is a no-op.
func (s *Store) RegisterAgent(id int64, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE agents SET is_registered = 1, registration_date = ?, updated_at = ?
		WHERE id = ? AND is_registered = 0`,
		fmtTime(at), fmtTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.requireAgent(id)
	}
	return nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// requireAgent returns ErrNotFound if the agent does not exist, nil otherwise.
func (s *Store) requireAgent(id int64) error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM agents WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Guarded status writes (agent state machine backend) ---

func placeholders(n int) string {
	return strings.Repeat(",?", n)[1:]
}

// SetStatus moves the agent's status from one of the allowed source states
// to the target state in a single guarded write. Returns ErrConflict when
// the agent exists but its status is not in from, ErrNotFound when the
// agent does not exist.
func (s *Store) SetStatus(id int64, from []string, to string) error {
	args := []any{to, fmtTime(time.Now()), id}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := s.db.Exec(
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return err
	}
	return s.resolveGuard(res, id)
}

// SetStatusClearError is SetStatus plus an atomic clear of the error
// fields in the same statement, so a poller never observes the new status
// alongside a stale error.
func (s *Store) SetStatusClearError(id int64, from []string, to string) error {
	args := []any{to, fmtTime(time.Now()), id}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := s.db.Exec(
		`UPDATE agents SET status = ?, last_error = NULL, last_error_time = NULL, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return err
	}
	return s.resolveGuard(res, id)
}

// SetStatusError forces the agent into the error state, writing the error
// message and timestamp in the same statement. No source-state guard: any
// stage failure is terminal for the job regardless of where it happened.
func (s *Store) SetStatusError(id int64, to, msg string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE agents SET status = ?, last_error = ?, last_error_time = ?, updated_at = ? WHERE id = ?`,
		to, msg, fmtTime(at), fmtTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// ResetAgent forces an errored agent back to the target state with default
// generation config, clearing the error fields, all in one statement.
func (s *Store) ResetAgent(id int64, from []string, to string, cfg GenerationConfig) error {
	args := []any{
		to,
		cfg.Provider, cfg.Model, cfg.Temperature, cfg.MaxTokens, marshalStrings(cfg.Topics),
		cfg.WordCountMin, cfg.WordCountMax, cfg.Style, cfg.Tone,
		cfg.Instructions, cfg.ResearchDepth, boolInt(cfg.ResearchEnabled),
		fmtTime(time.Now()), id,
	}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := s.db.Exec(`
		UPDATE agents SET status = ?,
			provider = ?, model = ?, temperature = ?, max_tokens = ?, topics = ?,
			word_count_min = ?, word_count_max = ?, style = ?, tone = ?,
			instructions = ?, research_depth = ?, research_enabled = ?,
			last_error = NULL, last_error_time = NULL, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return err
	}
	return s.resolveGuard(res, id)
}

// StartJob transitions the agent into the researching state, persists the
// merged generation config, clears the error fields, and inserts the
// artifact placeholder in a single transaction. An agent observed in
// researching always has exactly one artifact for the current job.
func (s *Store) StartJob(id int64, from []string, to string, cfg GenerationConfig, art Artifact) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning job transaction: %w", err)
	}
	defer tx.Rollback()

	args := []any{
		to,
		cfg.Provider, cfg.Model, cfg.Temperature, cfg.MaxTokens, marshalStrings(cfg.Topics),
		cfg.WordCountMin, cfg.WordCountMax, cfg.Style, cfg.Tone,
		cfg.Instructions, cfg.ResearchDepth, boolInt(cfg.ResearchEnabled),
		fmtTime(time.Now()), id,
	}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := tx.Exec(`
		UPDATE agents SET status = ?,
			provider = ?, model = ?, temperature = ?, max_tokens = ?, topics = ?,
			word_count_min = ?, word_count_max = ?, style = ?, tone = ?,
			instructions = ?, research_depth = ?, research_enabled = ?,
			last_error = NULL, last_error_time = NULL, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Check existence on the transaction's connection: with the pool
		// capped at one connection, going through s.db here would deadlock
		// against our own open transaction.
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM agents WHERE id = ?", id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}

	createdAt := art.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := tx.Exec(`
		INSERT INTO artifacts (id, agent_id, title, body, word_count, status, topic_focus, style, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		art.ID, art.AgentID, art.Title, art.Body, art.WordCount, art.Status,
		marshalStrings(art.TopicFocus), art.Style, fmtTime(createdAt),
	); err != nil {
		return fmt.Errorf("inserting artifact placeholder: %w", err)
	}

	return tx.Commit()
}

func (s *Store) resolveGuard(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := s.requireAgent(id); err != nil {
		return err
	}
	return ErrConflict
}

// --- Artifacts ---

const artifactColumns = `id, agent_id, title, body, word_count, status, generated_at,
	topic_focus, style, generation_seconds, research_seconds, error_count, created_at`

func scanArtifact(row rowScanner) (Artifact, error) {
	var a Artifact
	var generatedAt sql.NullString
	var topicFocus, createdAt string

	err := row.Scan(
		&a.ID, &a.AgentID, &a.Title, &a.Body, &a.WordCount, &a.Status, &generatedAt,
		&topicFocus, &a.Style, &a.GenerationSeconds, &a.ResearchSeconds, &a.ErrorCount, &createdAt,
	)
	if err == sql.ErrNoRows {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, err
	}

	if a.GeneratedAt, err = parseNullTime(generatedAt); err != nil {
		return Artifact{}, fmt.Errorf("parsing generated_at: %w", err)
	}
	if a.TopicFocus, err = unmarshalStrings(topicFocus); err != nil {
		return Artifact{}, fmt.Errorf("parsing topic_focus: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Artifact{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return a, nil
}

// GetArtifact returns the artifact with the given id.
func (s *Store) GetArtifact(id string) (Artifact, error) {
	row := s.db.QueryRow(`SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	return scanArtifact(row)
}

// ListArtifactsByAgent returns the agent's artifacts, newest first.
func (s *Store) ListArtifactsByAgent(agentID int64, limit int) ([]Artifact, error) {
	rows, err := s.db.Query(
		`SELECT `+artifactColumns+` FROM artifacts WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// CountArtifactsByAgent returns how many artifacts exist for the agent in
// the given status. Pass "" to count all.
func (s *Store) CountArtifactsByAgent(agentID int64, status string) (int, error) {
	var n int
	var err error
	if status == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE agent_id = ?`, agentID).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE agent_id = ? AND status = ?`, agentID, status).Scan(&n)
	}
	return n, err
}

// FinalizeArtifact mutates the placeholder row in place to its completed
// form. The row is never re-inserted: one artifact per job.
func (s *Store) FinalizeArtifact(a Artifact) error {
	res, err := s.db.Exec(`
		UPDATE artifacts SET title = ?, body = ?, word_count = ?, status = ?,
			generated_at = ?, topic_focus = ?, style = ?,
			generation_seconds = ?, research_seconds = ?, error_count = ?
		WHERE id = ?`,
		a.Title, a.Body, a.WordCount, a.Status,
		fmtNullTime(a.GeneratedAt), marshalStrings(a.TopicFocus), a.Style,
		a.GenerationSeconds, a.ResearchSeconds, a.ErrorCount,
		a.ID,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// MarkArtifactFailed leaves the placeholder in a failed state. It is never
// deleted so the job remains traceable.
func (s *Store) MarkArtifactFailed(id string) error {
	res, err := s.db.Exec(
		`UPDATE artifacts SET status = 'failed', error_count = error_count + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// --- Research records ---

// SaveResearchRecord stores the raw research material linked to an artifact.
func (s *Store) SaveResearchRecord(r ResearchRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO research_records (id, artifact_id, content, source_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.ArtifactID, r.Content, r.SourceID, fmtTime(createdAt),
	)
	return err
}

// GetResearchByArtifact returns the research record linked to an artifact.
func (s *Store) GetResearchByArtifact(artifactID string) (ResearchRecord, error) {
	var r ResearchRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, artifact_id, content, source_id, created_at
		FROM research_records WHERE artifact_id = ?`, artifactID,
	).Scan(&r.ID, &r.ArtifactID, &r.Content, &r.SourceID, &createdAt)
	if err == sql.ErrNoRows {
		return ResearchRecord{}, ErrNotFound
	}
	if err != nil {
		return ResearchRecord{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return ResearchRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

// --- Analytics ---

// UpdateAgentAnalytics persists the recomputed rolling aggregate. Only the
// analytics aggregator calls this.
func (s *Store) UpdateAgentAnalytics(id int64, a Analytics) error {
	res, err := s.db.Exec(`
		UPDATE agents SET
			total_artifacts = ?, total_word_count = ?, average_word_count = ?,
			success_rate_percent = ?, average_generation_seconds = ?,
			topic_distribution = ?, analytics_updated_at = ?, updated_at = ?
		WHERE id = ?`,
		a.TotalArtifacts, a.TotalWordCount, a.AverageWordCount,
		a.SuccessRatePercent, a.AverageGenerationSeconds,
		marshalCounts(a.TopicDistribution), fmtNullTime(a.LastUpdateTime), fmtTime(time.Now()),
		id,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

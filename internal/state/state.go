// Package state is the incident-response memory: learned facts, incident
// history with bounded-size compaction, and keyword retrieval of past
// incidents for prompt context.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/storage"
)

// NoMatches is returned by SearchHistory when no incident summary matches.
const NoMatches = "No matches found."

// DefaultLimit is the incident count above which compaction fires.
const DefaultLimit = 3

// compactBatch is how many of the oldest incidents one compaction pass folds.
const compactBatch = 2

// Logger is the slice of the observability engine the store needs.
type Logger interface {
	Log(ctx context.Context, level model.Level, component, msg string, attrs ...any)
}

// Store layers memory semantics over a storage engine. Persistence errors are
// returned to the caller unchanged; nothing here retries.
//
// A Store is shared by concurrent runs. Archiving and compaction hold mu so
// every pass sees the log left by the previous one.
type Store struct {
	db    storage.Persistence
	log   Logger
	limit int

	mu sync.Mutex
}

// New returns a store compacting once more than limit incidents exist.
// A limit below 1 selects DefaultLimit.
func New(db storage.Persistence, log Logger, limit int) *Store {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Store{db: db, log: log, limit: limit}
}

// Limit returns the configured compaction threshold.
func (s *Store) Limit() int {
	return s.limit
}

// SaveFact upserts key with the textual form of value.
func (s *Store) SaveFact(ctx context.Context, key string, value any) error {
	if err := s.db.PutFact(ctx, key, Text(value)); err != nil {
		return err
	}
	s.log.Log(ctx, model.LevelInfo, "STATE_STORE", "Persisted Fact", "key", key)
	return nil
}

// Fact returns the stored value for key.
func (s *Store) Fact(ctx context.Context, key string) (string, error) {
	return s.db.GetFact(ctx, key)
}

// Facts returns every stored fact ordered by key.
func (s *Store) Facts(ctx context.Context) ([]model.Fact, error) {
	return s.db.ListFacts(ctx)
}

// SearchHistory returns one "Issue: ... | Resolution: ..." line per incident
// whose summary contains keyword, in incident order, or NoMatches.
func (s *Store) SearchHistory(ctx context.Context, keyword string) (string, error) {
	hits, err := s.db.SearchIncidents(ctx, keyword)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return NoMatches, nil
	}
	lines := make([]string, len(hits))
	for i, inc := range hits {
		lines[i] = fmt.Sprintf("Issue: %s | Resolution: %s", inc.Summary, inc.Resolution)
	}
	s.log.Log(ctx, model.LevelInfo, "RAG_RECALL", fmt.Sprintf("Found %d historical matches", len(hits)))
	return strings.Join(lines, "\n"), nil
}

// ArchiveIncident appends an incident and then runs the compaction check.
func (s *Store) ArchiveIncident(ctx context.Context, summary, resolution string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.db.InsertIncident(ctx, summary, resolution)
	if err != nil {
		return 0, err
	}
	s.log.Log(ctx, model.LevelSuccess, "ARCHIVE", "Incident saved to history.", "incident_id", id)
	if _, err := s.compact(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// CompactMemory replaces the two oldest incidents with one placeholder when
// more than Limit incidents exist. It reports whether a pass ran. One pass
// removes a net single row; a log still over the limit compacts again on the
// next archive.
func (s *Store) CompactMemory(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compact(ctx)
}

func (s *Store) compact(ctx context.Context) (bool, error) {
	count, err := s.db.CountIncidents(ctx)
	if err != nil {
		return false, err
	}
	if count <= s.limit {
		return false, nil
	}

	s.log.Log(ctx, model.LevelWarn, "CONTEXT_ENG",
		fmt.Sprintf("Memory limit exceeded (%d/%d). Compacting...", count, s.limit))

	oldest, err := s.db.ListIncidents(ctx, compactBatch)
	if err != nil {
		return false, err
	}
	ids := make([]int64, len(oldest))
	for i, inc := range oldest {
		ids[i] = inc.ID
	}
	if _, err := s.db.ReplaceIncidents(ctx, ids, model.CompactedSummary, model.CompactedResolution); err != nil {
		return false, err
	}

	s.log.Log(ctx, model.LevelSuccess, "CONTEXT_ENG", "Compaction Complete.", "removed_ids", ids)
	return true, nil
}

// Incidents returns the full incident log in id order.
func (s *Store) Incidents(ctx context.Context) ([]model.Incident, error) {
	return s.db.ListIncidents(ctx, 0)
}

// Text renders a fact value: strings verbatim, everything else as JSON.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

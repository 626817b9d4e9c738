package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/supabase-community/supabase-go"
)

const jobsTable = "generation_jobs"

// jobProjection is the subset of the stored job JSON that is denormalized into
// queryable columns. The full blob still lives in the payload column, so the
// keyed Get/Set contract round-trips byte-for-byte.
type jobProjection struct {
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	ImageIDs    []string   `json:"imageIds"`
	Request     struct {
		ClientID  string `json:"clientId"`
		SessionID string `json:"sessionId"`
		Type      string `json:"type"`
	} `json:"request"`
}

type jobRow struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	FlowID      string          `json:"flow_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result"`
	Error       *string         `json:"error"`
	Priority    int             `json:"priority"`
	CreatedAt   *time.Time      `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	ExpiresAt   *time.Time      `json:"expires_at"`
}

// SupabaseStore is the durable relational adapter: one row per job in the
// generation_jobs table. Session filtering reads flow_id without a secondary
// index, which is acceptable at expected scale.
type SupabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

// NewSupabaseStore wraps an initialized Supabase client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client, now: time.Now}
}

func (s *SupabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var proj jobProjection
	if err := json.Unmarshal(value, &proj); err != nil {
		return fmt.Errorf("supabase set %s: unparsable value: %w", key, err)
	}

	resultJSON, _ := json.Marshal(proj.ImageIDs)

	row := map[string]interface{}{
		"id":        key,
		"client_id": proj.Request.ClientID,
		"flow_id":   proj.Request.SessionID,
		"type":      orDefault(proj.Request.Type, "image"),
		"payload":   json.RawMessage(value),
		"status":    proj.Status,
		"progress":  proj.Progress,
		"result":    json.RawMessage(resultJSON),
		"error":     proj.Error,
		"priority":  0,
	}
	if !proj.CreatedAt.IsZero() {
		row["created_at"] = proj.CreatedAt.Format(time.RFC3339Nano)
	}
	if proj.CompletedAt != nil {
		row["completed_at"] = proj.CompletedAt.Format(time.RFC3339Nano)
	}
	if proj.Status != "pending" {
		row["started_at"] = s.now().Format(time.RFC3339Nano)
	}
	if ttl > 0 {
		row["expires_at"] = s.now().Add(ttl).Format(time.RFC3339Nano)
	} else {
		row["expires_at"] = nil
	}

	_, _, err := s.client.From(jobsTable).
		Insert(row, true, "id", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase set %s: %w", key, err)
	}
	return nil
}

func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	rows, err := s.fetch("id", key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || s.rowExpired(rows[0]) {
		return nil, ErrNotFound
	}
	return rows[0].Payload, nil
}

func (s *SupabaseStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	data, _, err := s.client.From(jobsTable).
		Select("id,expires_at", "exact", false).
		Like("id", prefix+"%").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase keys %s: %w", prefix, err)
	}

	var rows []jobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase keys: failed to parse response: %w", err)
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if s.rowExpired(row) {
			continue
		}
		keys = append(keys, row.ID)
	}
	return keys, nil
}

func (s *SupabaseStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	data, _, err := s.client.From(jobsTable).
		Select("*", "exact", false).
		In("id", keys).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase mget: %w", err)
	}

	var rows []jobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase mget: failed to parse response: %w", err)
	}

	byID := make(map[string]jobRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	results := make([][]byte, len(keys))
	for i, key := range keys {
		if row, ok := byID[key]; ok && !s.rowExpired(row) {
			results[i] = row.Payload
		}
	}
	return results, nil
}

func (s *SupabaseStore) Del(ctx context.Context, key string) error {
	_, _, err := s.client.From(jobsTable).
		Delete("", "").
		Eq("id", key).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase del %s: %w", key, err)
	}
	return nil
}

func (s *SupabaseStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, _, err := s.client.From(jobsTable).
		Update(map[string]interface{}{
			"expires_at": s.now().Add(ttl).Format(time.RFC3339Nano),
		}, "", "").
		Eq("id", key).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase expire %s: %w", key, err)
	}
	return nil
}

// KeysBySession lists job keys owned by one session via the flow_id column.
func (s *SupabaseStore) KeysBySession(ctx context.Context, sessionID string) ([]string, error) {
	data, _, err := s.client.From(jobsTable).
		Select("id,expires_at", "exact", false).
		Eq("flow_id", sessionID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase keys by session %s: %w", sessionID, err)
	}

	var rows []jobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase keys by session: failed to parse response: %w", err)
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if s.rowExpired(row) {
			continue
		}
		keys = append(keys, row.ID)
	}
	return keys, nil
}

func (s *SupabaseStore) fetch(column, value string) ([]jobRow, error) {
	data, _, err := s.client.From(jobsTable).
		Select("*", "exact", false).
		Eq(column, value).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase query %s=%s: %w", column, value, err)
	}

	var rows []jobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase: failed to parse response: %w", err)
	}
	return rows, nil
}

// rowExpired treats rows past their expires_at as logically deleted. The row
// itself is reclaimed by the retention sweep.
func (s *SupabaseStore) rowExpired(row jobRow) bool {
	if row.ExpiresAt == nil {
		return false
	}
	expired := s.now().After(*row.ExpiresAt)
	if expired {
		log.Printf("🔍 Job row %s past expires_at, treating as missing", row.ID)
	}
	return expired
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

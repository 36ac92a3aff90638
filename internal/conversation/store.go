package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStateNotFound is returned when no conversation state exists for a lead.
var ErrStateNotFound = errors.New("conversation: state not found")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StateStore is the persistence surface the engine needs between turns.
type StateStore interface {
	Get(ctx context.Context, leadID string) (*State, error)
	Upsert(ctx context.Context, state *State) error
}

// MessageLog records every inbound and outbound message for audit.
type MessageLog interface {
	Append(ctx context.Context, leadID, role, text, messageID string) error
}

// PGStateStore keeps conversation state in Postgres with the tracker
// context serialized as JSONB.
type PGStateStore struct {
	pool rowQuerier
	now  func() time.Time
}

func NewPGStateStore(pool *pgxpool.Pool) *PGStateStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PGStateStore{pool: pool, now: time.Now}
}

func newPGStateStoreWithExec(exec rowQuerier) *PGStateStore {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &PGStateStore{pool: exec, now: time.Now}
}

func (s *PGStateStore) Get(ctx context.Context, leadID string) (*State, error) {
	var (
		step       string
		contextRaw []byte
		updatedAt  time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT step, context, updated_at
		FROM conversation_states
		WHERE lead_id = $1
	`, leadID).Scan(&step, &contextRaw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("conversation: get state: %w", err)
	}

	state := &State{
		LeadID:    leadID,
		Step:      Step(step),
		UpdatedAt: updatedAt,
	}
	if len(contextRaw) > 0 {
		if err := json.Unmarshal(contextRaw, &state.Context); err != nil {
			return nil, fmt.Errorf("conversation: decode context: %w", err)
		}
	}
	if state.Context.Version == 0 {
		// Stale rows written before context versioning start over.
		state.Context = NewContext()
	}
	return state, nil
}

func (s *PGStateStore) Upsert(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("conversation: state cannot be nil")
	}
	contextRaw, err := json.Marshal(state.Context)
	if err != nil {
		return fmt.Errorf("conversation: encode context: %w", err)
	}

	now := s.now().UTC()
	state.UpdatedAt = now
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_states (lead_id, step, context, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id) DO UPDATE SET
			step = EXCLUDED.step,
			context = EXCLUDED.context,
			updated_at = EXCLUDED.updated_at
	`, state.LeadID, string(state.Step), contextRaw, now)
	if err != nil {
		return fmt.Errorf("conversation: upsert state: %w", err)
	}
	return nil
}

// PGMessageLog appends conversation messages to Postgres.
type PGMessageLog struct {
	pool rowQuerier
	now  func() time.Time
}

func NewPGMessageLog(pool *pgxpool.Pool) *PGMessageLog {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PGMessageLog{pool: pool, now: time.Now}
}

func newPGMessageLogWithExec(exec rowQuerier) *PGMessageLog {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &PGMessageLog{pool: exec, now: time.Now}
}

func (l *PGMessageLog) Append(ctx context.Context, leadID, role, text, messageID string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO conversation_messages (lead_id, role, content, message_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (message_id) WHERE message_id IS NOT NULL DO NOTHING
	`, leadID, role, text, messageID, l.now().UTC())
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

// History returns the most recent messages for a lead, oldest first.
func (l *PGMessageLog) History(ctx context.Context, leadID string, limit int) ([]LoggedMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM (
			SELECT role, content, created_at
			FROM conversation_messages
			WHERE lead_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	defer rows.Close()

	var out []LoggedMessage
	for rows.Next() {
		var msg LoggedMessage
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan history: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// LoggedMessage is one persisted conversation turn.
type LoggedMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

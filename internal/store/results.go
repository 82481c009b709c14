package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okrforge/gateway/internal/types"
)

// Results persists successful generation payloads per caller so the
// surrounding product can show a user their past plans. The gate itself
// never reads this store; a nil receiver disables persistence entirely.
type Results struct {
	db *pgxpool.Pool
}

func NewResults(db *pgxpool.Pool) *Results {
	if db == nil {
		return nil
	}
	return &Results{db: db}
}

// Save inserts one generation result. Callers treat errors as advisory; a
// failed save never affects the response already being composed.
func (s *Results) Save(ctx context.Context, callerID string, genType types.GenerationType, prompt string, payload []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.db.Exec(saveCtx, `
		INSERT INTO generation_results (caller_id, generation_type, prompt, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, callerID, string(genType), prompt, payload)
	if err != nil {
		return fmt.Errorf("insert generation result: %w", err)
	}
	return nil
}

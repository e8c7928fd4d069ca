// Package ratings persists per-simulation performance ratings in Postgres:
// the LLM-generated assessment and the player's star rating, one row per
// simulation.
package ratings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the query surface the store needs; *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store writes rating rows.
type Store struct {
	db DB
}

// New wraps a database handle.
func New(db DB) *Store { return &Store{db: db} }

// NewFromPool wraps a pgx pool.
func NewFromPool(pool *pgxpool.Pool) *Store { return New(pool) }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS simulation_ratings (
	id                     BIGSERIAL PRIMARY KEY,
	simulation_id_str      TEXT NOT NULL UNIQUE,
	user_id_str            TEXT,
	scenario_key           TEXT,
	timeliness_score       INTEGER,
	contact_strategy_score INTEGER,
	decision_quality_score INTEGER,
	efficiency_score       INTEGER,
	overall_score          INTEGER,
	qualitative_feedback   TEXT,
	llm_rated_at           TIMESTAMPTZ,
	user_star_rating       INTEGER,
	user_feedback          TEXT,
	user_rated_at          TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the ratings table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring ratings schema: %w", err)
	}
	return nil
}

const upsertLLMSQL = `
INSERT INTO simulation_ratings (
	simulation_id_str, user_id_str, scenario_key, timeliness_score,
	contact_strategy_score, decision_quality_score, efficiency_score,
	overall_score, qualitative_feedback, llm_rated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (simulation_id_str) DO UPDATE SET
	user_id_str            = COALESCE(EXCLUDED.user_id_str, simulation_ratings.user_id_str),
	scenario_key           = COALESCE(EXCLUDED.scenario_key, simulation_ratings.scenario_key),
	timeliness_score       = EXCLUDED.timeliness_score,
	contact_strategy_score = EXCLUDED.contact_strategy_score,
	decision_quality_score = EXCLUDED.decision_quality_score,
	efficiency_score       = EXCLUDED.efficiency_score,
	overall_score          = EXCLUDED.overall_score,
	qualitative_feedback   = EXCLUDED.qualitative_feedback,
	llm_rated_at           = now(),
	updated_at             = now()`

// UpsertLLMRating stores the generated assessment, leaving any existing user
// star rating untouched. userID may be empty for guest runs.
func (s *Store) UpsertLLMRating(ctx context.Context, simID string, rating map[string]any, userID, scenario string) error {
	_, err := s.db.Exec(ctx, upsertLLMSQL,
		simID,
		nullableText(userID),
		nullableText(scenario),
		scoreValue(rating, "timeliness_score"),
		scoreValue(rating, "contact_strategy_score"),
		scoreValue(rating, "decision_quality_score"),
		scoreValue(rating, "efficiency_score"),
		scoreValue(rating, "overall_score"),
		stringValue(rating, "qualitative_feedback"),
	)
	if err != nil {
		return fmt.Errorf("upserting LLM rating for %s: %w", simID, err)
	}
	return nil
}

const upsertUserSQL = `
INSERT INTO simulation_ratings (
	simulation_id_str, user_id_str, user_star_rating, user_feedback, user_rated_at
) VALUES ($1, $2, $3, $4, now())
ON CONFLICT (simulation_id_str) DO UPDATE SET
	user_id_str      = COALESCE(EXCLUDED.user_id_str, simulation_ratings.user_id_str),
	user_star_rating = EXCLUDED.user_star_rating,
	user_feedback    = EXCLUDED.user_feedback,
	user_rated_at    = now(),
	updated_at       = now()`

// UpsertUserStarRating stores the player's star rating and free-form
// feedback, leaving any existing LLM assessment untouched.
func (s *Store) UpsertUserStarRating(ctx context.Context, simID string, stars int, feedback, userID string) error {
	if _, err := s.db.Exec(ctx, upsertUserSQL, simID, nullableText(userID), stars, feedback); err != nil {
		return fmt.Errorf("upserting user rating for %s: %w", simID, err)
	}
	return nil
}

// scoreValue extracts an integer score; nil keeps the column NULL for
// partial ratings.
func scoreValue(rating map[string]any, key string) any {
	switch v := rating[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return nil
	}
}

func stringValue(rating map[string]any, key string) any {
	if v, ok := rating[key].(string); ok {
		return v
	}
	return nil
}

// nullableText maps empty strings to NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

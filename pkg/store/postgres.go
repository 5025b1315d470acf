package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/pg"
)

// DB is the subset of pgxpool.Pool the store needs, kept narrow so tests
// can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads flags and rules from PostgreSQL. It is strictly
// read-only: the management layer owns the schema and all writes.
//
// Rule conditions live in a nullable jsonb column that historically
// accumulated garbage (double-encoded strings, stringified-object
// placeholders). They are parsed here, once, into the typed representation;
// anything unparseable degrades to "no conditions" with a warning so a bad
// row can never break evaluation.
type PostgresStore struct {
	db  DB
	log *slog.Logger
}

// NewPostgresStore creates a rule store over the given connection pool.
func NewPostgresStore(db DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{db: db, log: log}
}

const flagColumns = `id, app_id, key, name, COALESCE(description, ''), enabled, created_at, updated_at`

// GetFlag implements RuleStore.
func (s *PostgresStore) GetFlag(ctx context.Context, appID, key string) (*evaluation.Flag, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+flagColumns+` FROM flags WHERE app_id = $1 AND key = $2`,
		appID, key)

	var flag evaluation.Flag
	err := row.Scan(&flag.ID, &flag.AppID, &flag.Key, &flag.Name,
		&flag.Description, &flag.Enabled, &flag.CreatedAt, &flag.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return &flag, nil
}

// GetRules implements RuleStore. The ORDER BY mirrors evaluation order so
// callers can run the result as-is.
func (s *PostgresStore) GetRules(ctx context.Context, flagID string) ([]evaluation.Rule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, flag_id, type, enabled, priority, conditions,
		        target_percentage, COALESCE(hash_key, 'user_id'),
		        COALESCE(description, ''), created_at, updated_at
		   FROM flag_rules
		  WHERE flag_id = $1
		  ORDER BY priority DESC, created_at ASC`,
		flagID)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	var rules []evaluation.Rule
	for rows.Next() {
		var (
			rule          evaluation.Rule
			rawConditions []byte
		)
		if err := rows.Scan(&rule.ID, &rule.FlagID, &rule.Type, &rule.Enabled,
			&rule.Priority, &rawConditions, &rule.TargetPercentage,
			&rule.HashKey, &rule.Description, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, errors.Join(ErrQueryFailed, err)
		}

		rule.Conditions, err = evaluation.ParseConditions(json.RawMessage(rawConditions))
		if err != nil {
			s.log.Warn("dropping unparseable rule conditions",
				slog.String("rule_id", rule.ID),
				slog.Any("error", err))
		}

		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return rules, nil
}

// ListFlags implements RuleStore.
func (s *PostgresStore) ListFlags(ctx context.Context, appID string) ([]evaluation.Flag, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+flagColumns+` FROM flags WHERE app_id = $1 ORDER BY created_at ASC`,
		appID)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	var flags []evaluation.Flag
	for rows.Next() {
		var flag evaluation.Flag
		if err := rows.Scan(&flag.ID, &flag.AppID, &flag.Key, &flag.Name,
			&flag.Description, &flag.Enabled, &flag.CreatedAt, &flag.UpdatedAt); err != nil {
			return nil, errors.Join(ErrQueryFailed, err)
		}
		flags = append(flags, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return flags, nil
}

// ResolveAPIKey implements APIKeyResolver against the applications table.
func (s *PostgresStore) ResolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id FROM applications WHERE api_key = $1 AND active`, apiKey)

	var appID string
	err := row.Scan(&appID)
	if pg.IsNotFoundError(err) {
		return "", ErrAppNotFound
	}
	if err != nil {
		return "", errors.Join(ErrQueryFailed, err)
	}
	return appID, nil
}

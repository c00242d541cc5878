package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateProfiles = `
        CREATE TABLE IF NOT EXISTS profiles (
            key         TEXT PRIMARY KEY,
            name        TEXT NOT NULL,
            interval_ms BIGINT NOT NULL,
            points      JSONB NOT NULL,
            target      JSONB,
            created_at  TIMESTAMPTZ NOT NULL,
            updated_at  TIMESTAMPTZ NOT NULL
        );
    `
	sqlSelectProfiles = `
        SELECT name, interval_ms, points, target, created_at, updated_at
        FROM profiles
        ORDER BY created_at ASC;
    `
	sqlSelectProfile = `
        SELECT name, interval_ms, points, target, created_at, updated_at
        FROM profiles
        WHERE key = $1;
    `
	sqlUpsertProfile = `
        INSERT INTO profiles (key, name, interval_ms, points, target, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (key) DO UPDATE SET
            name = EXCLUDED.name,
            interval_ms = EXCLUDED.interval_ms,
            points = EXCLUDED.points,
            target = EXCLUDED.target,
            updated_at = EXCLUDED.updated_at
        RETURNING created_at, updated_at;
    `
	sqlDeleteProfile = `DELETE FROM profiles WHERE key = $1;`
)

// Store provides a PostgreSQL implementation of schemas.ProfileRepository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.ProfileRepository = (*Store)(nil)

// New creates a new store instance, verifies the connection and makes sure
// the profiles table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateProfiles); err != nil {
		return nil, fmt.Errorf("failed to create profiles table: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]schemas.Profile, error) {
	rows, err := s.pool.Query(ctx, sqlSelectProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []schemas.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return profiles, nil
}

func (s *Store) GetProfile(ctx context.Context, name string) (schemas.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, sqlSelectProfile, schemas.ProfileKey(name)))
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.Profile{}, fmt.Errorf("%w: %q", schemas.ErrProfileNotFound, strings.TrimSpace(name))
	}
	return p, err
}

func (s *Store) SaveProfile(ctx context.Context, p schemas.Profile) (schemas.Profile, error) {
	p, err := normalizeProfile(p)
	if err != nil {
		return schemas.Profile{}, err
	}

	points, err := json.Marshal(p.Points)
	if err != nil {
		return schemas.Profile{}, fmt.Errorf("failed to encode points: %w", err)
	}
	var target []byte
	if p.Target != nil {
		if target, err = json.Marshal(p.Target); err != nil {
			return schemas.Profile{}, fmt.Errorf("failed to encode target: %w", err)
		}
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, sqlUpsertProfile, schemas.ProfileKey(p.Name), p.Name, int64(p.Interval), points, target, now)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return schemas.Profile{}, fmt.Errorf("failed to upsert profile %q: %w", p.Name, err)
	}
	s.log.Debug("Profile saved.", zap.String("name", p.Name), zap.Int("points", len(p.Points)))
	return p, nil
}

func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteProfile, schemas.ProfileKey(name))
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", schemas.ErrProfileNotFound, strings.TrimSpace(name))
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanProfile(row pgx.Row) (schemas.Profile, error) {
	var (
		p          schemas.Profile
		intervalMS int64
		points     []byte
		target     []byte
	)
	if err := row.Scan(&p.Name, &intervalMS, &points, &target, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan profile row: %w", err)
	}
	p.Interval = schemas.Millis(intervalMS)
	if err := json.Unmarshal(points, &p.Points); err != nil {
		return p, fmt.Errorf("failed to decode points of profile %q: %w", p.Name, err)
	}
	if len(target) > 0 && string(target) != "null" {
		p.Target = new(schemas.WindowTarget)
		if err := json.Unmarshal(target, p.Target); err != nil {
			return p, fmt.Errorf("failed to decode target of profile %q: %w", p.Name, err)
		}
	}
	return p, nil
}

// normalizeProfile trims the name and rejects what cannot be stored.
func normalizeProfile(p schemas.Profile) (schemas.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, schemas.Invalid("name", "is required")
	}
	if p.Interval < 0 {
		return p, schemas.Invalid("interval", "must not be negative")
	}
	if p.Points == nil {
		p.Points = []schemas.ClickPoint{}
	}
	return p, nil
}

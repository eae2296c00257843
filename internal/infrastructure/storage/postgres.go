package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// ProfileStore reads user profiles from Postgres. Profiles are the only
// entity that survives across runs and the core needs read access only.
type ProfileStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore wires a sql.DB implementation.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetProfile loads one user profile with its configured sources, ordered
// by priority.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if s.db == nil {
		return nil, fmt.Errorf("profile store is not configured")
	}

	query, args, err := s.sb.
		Select("user_id", "email", "name", "timezone", "interests",
			"max_articles", "quality_floor", "schedule_time").
		From("user_profiles").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}

	profile := &domain.UserProfile{}
	var interests pq.StringArray
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&profile.UserID,
		&profile.Email,
		&profile.Name,
		&profile.Timezone,
		&interests,
		&profile.MaxArticles,
		&profile.QualityFloor,
		&profile.ScheduleTime,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	profile.Interests = interests

	sources, err := s.loadSources(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.Sources = sources

	return profile, nil
}

func (s *ProfileStore) loadSources(ctx context.Context, userID string) ([]domain.SourceSpec, error) {
	query, args, err := s.sb.
		Select("source_id", "kind", "params").
		From("user_sources").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var specs []domain.SourceSpec
	for rows.Next() {
		var spec domain.SourceSpec
		var rawParams []byte
		if err := rows.Scan(&spec.ID, &spec.Kind, &rawParams); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &spec.Params); err != nil {
				return nil, fmt.Errorf("decode params for source %s: %w", spec.ID, err)
			}
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return specs, nil
}

package training

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cragclub/backend/internal/telemetry/tracing"
	"github.com/cragclub/backend/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Save upserts the session, the open session is saved on every climb edit
// and overwritten in place.
func (r *Repo) Save(ctx context.Context, userID string, session Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.training.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", session.ID))
	span.SetAttributes(attribute.String("user.id", userID))

	climbsJson, err := json.Marshal(session.Climbs)
	if err != nil {
		return fmt.Errorf("marshal climbs: %w", err)
	}

	var metricsJson []byte
	if session.WorkoutMetrics != nil {
		metricsJson, err = json.Marshal(session.WorkoutMetrics)
		if err != nil {
			return fmt.Errorf("marshal workout metrics: %w", err)
		}
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO training_session
				(id, user_id, start_time, end_time, climbs, workout_metrics, recovery_feeling, sii)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				end_time = EXCLUDED.end_time,
				climbs = EXCLUDED.climbs,
				workout_metrics = EXCLUDED.workout_metrics,
				recovery_feeling = EXCLUDED.recovery_feeling,
				sii = EXCLUDED.sii;`,
		session.ID, userID, session.StartTime, session.EndTime,
		climbsJson, metricsJson, session.RecoveryFeeling, session.SII,
	)
	if err != nil {
		// a partial unique index keeps at most one open session per user
		if pkg.IsUniqueViolationError(err) {
			return ErrSessionAlreadyOpen
		}
		return fmt.Errorf("exec: %w", err)
	}

	return nil
}

func (r *Repo) Delete(ctx context.Context, userID, sessionID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.training.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", sessionID))
	span.SetAttributes(attribute.String("user.id", userID))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM training_session WHERE id = $1 AND user_id = $2;`,
		sessionID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// List returns all of the user's sessions, oldest first, the full set
// needed for the 30-day rolling baseline.
func (r *Repo) List(ctx context.Context, userID string) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.training.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, start_time, end_time, climbs, workout_metrics, recovery_feeling, sii
			FROM training_session
			WHERE user_id = $1
			ORDER BY start_time ASC;`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	sessions, err := r.rows2sessions(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2sessions: %w", err)
	}
	return sessions, nil
}

func (r *Repo) rows2sessions(rows pgx.Rows) ([]Session, error) {
	var sessions []Session
	for rows.Next() {
		var id string
		var startTime time.Time
		var endTime *time.Time
		var climbsBytes []byte
		var metricsBytes []byte
		var recoveryFeeling *int
		var sii *float64
		if err := rows.Scan(&id, &startTime, &endTime, &climbsBytes, &metricsBytes, &recoveryFeeling, &sii); err != nil {
			return nil, err
		}

		s := Session{
			ID:              id,
			StartTime:       startTime,
			EndTime:         endTime,
			RecoveryFeeling: recoveryFeeling,
			SII:             sii,
		}

		if len(climbsBytes) > 0 {
			if err := json.Unmarshal(climbsBytes, &s.Climbs); err != nil {
				return nil, fmt.Errorf("unmarshal climbs for session %s: %w", id, err)
			}
		}
		if s.Climbs == nil {
			s.Climbs = []Climb{}
		}

		if len(metricsBytes) > 0 {
			var wm WorkoutMetrics
			if err := json.Unmarshal(metricsBytes, &wm); err != nil {
				return nil, fmt.Errorf("unmarshal workout metrics for session %s: %w", id, err)
			}
			s.WorkoutMetrics = &wm
		}

		sessions = append(sessions, s)
	}

	if sessions == nil {
		sessions = make([]Session, 0)
	}

	return sessions, nil
}

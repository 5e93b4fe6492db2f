package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/league/ranking"
)

// ProcedureName is the name the weekly ranking procedure is invoked by.
const ProcedureName = "process_weekly_leagues"

// Summary describes one weekly run.
type Summary struct {
	RunID            string    `json:"run_id"`
	WeekEnding       string    `json:"week_ending"`
	AlreadyProcessed bool      `json:"already_processed"`
	Promoted         int       `json:"promoted"`
	Demoted          int       `json:"demoted"`
	Reset            int       `json:"reset"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ErrAlreadyProcessed marks a run that lost the race for its week.
var ErrAlreadyProcessed = stderrors.New("week already processed")

type thresholdRow struct {
	League    models.Tier   `db:"league"`
	Promotion sql.NullInt64 `db:"promotion_xp_threshold"`
	Demotion  sql.NullInt64 `db:"demotion_xp_threshold"`
}

// Procedure runs the weekly ranking as one transaction on sqlx.
type Procedure struct {
	db *sqlx.DB
}

func NewProcedure(db *sqlx.DB) *Procedure {
	return &Procedure{db: db}
}

// ProcessWeeklyLeagues ranks every tier, applies promotions and demotions,
// appends history, resets weekly XP and records the week marker. A week
// that already has a marker is a no-op.
func (p *Procedure) ProcessWeeklyLeagues(ctx context.Context, runID string, now time.Time) (*Summary, error) {
	week := ranking.WeekEnding(now)
	summary := &Summary{RunID: runID, WeekEnding: week}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var done int
	if err := tx.GetContext(ctx, &done, tx.Rebind(`SELECT COUNT(*) FROM league_runs WHERE week_ending = ?`), week); err != nil {
		return nil, fmt.Errorf("check week marker: %w", err)
	}
	if done > 0 {
		summary.AlreadyProcessed = true
		return summary, nil
	}

	thresholds, err := loadThresholds(ctx, tx)
	if err != nil {
		return nil, err
	}

	var members []ranking.Member
	err = tx.SelectContext(ctx, &members,
		`SELECT user_id, COALESCE(username, '') AS username, league, weekly_xp FROM user_profiles`)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	for _, tr := range ranking.Plan(members, thresholds) {
		_, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE user_profiles SET league = ?, updated_at = ? WHERE user_id = ?`),
			tr.To, now, tr.UserID)
		if err != nil {
			return nil, fmt.Errorf("move %s: %w", tr.UserID, err)
		}

		_, err = tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO league_history
				(user_id, from_league, to_league, week_ending, weekly_xp, rank, action, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			tr.UserID, tr.From, tr.To, week, tr.WeeklyXP, tr.Rank, tr.Action, now)
		if err != nil {
			return nil, fmt.Errorf("record history for %s: %w", tr.UserID, err)
		}

		if tr.Action == models.ActionPromoted {
			summary.Promoted++
		} else {
			summary.Demoted++
		}
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE user_profiles SET weekly_xp = 0, updated_at = ? WHERE weekly_xp <> 0`), now)
	if err != nil {
		return nil, fmt.Errorf("reset weekly xp: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		summary.Reset = int(n)
	}

	summary.CompletedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO league_runs
			(week_ending, run_id, started_at, completed_at, promoted, demoted, reset)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
		week, runID, now, summary.CompletedAt, summary.Promoted, summary.Demoted, summary.Reset)
	if database.IsDuplicateKey(err) {
		return nil, ErrAlreadyProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("record week marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return summary, nil
}

func loadThresholds(ctx context.Context, tx *sqlx.Tx) (map[models.Tier]models.Threshold, error) {
	var rows []thresholdRow
	err := tx.SelectContext(ctx, &rows,
		`SELECT league, promotion_xp_threshold, demotion_xp_threshold FROM league_thresholds`)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	stored := make([]models.Threshold, 0, len(rows))
	for _, r := range rows {
		th := models.Threshold{League: r.League}
		if r.Promotion.Valid {
			v := int(r.Promotion.Int64)
			th.PromotionXPThreshold = &v
		}
		if r.Demotion.Valid {
			v := int(r.Demotion.Int64)
			th.DemotionXPThreshold = &v
		}
		stored = append(stored, th)
	}

	out := make(map[models.Tier]models.Threshold, len(models.Tiers))
	for _, th := range models.MergeThresholds(stored) {
		out[th.League] = th
	}
	return out, nil
}

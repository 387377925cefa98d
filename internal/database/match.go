package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kacperw/chesshub/internal/models"
)

// Matches is the durable match record. A row is created the moment a pair is
// made and survives server restarts; the live session in memory is only a
// coordination view of it.
type Matches struct{}

// CreateMatch inserts the freshly paired match with its starting notation.
func (Matches) CreateMatch(ctx context.Context, session *models.MatchSession, notation string) error {
	q := `INSERT INTO matches
	      (id, game_type, white_id, white_username, white_rating,
	       black_id, black_username, black_rating, notation, ongoing, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			session.GameID, session.GameType,
			session.White.AccountID, session.White.Username, session.White.Rating,
			session.Black.AccountID, session.Black.Username, session.Black.Rating,
			notation, time.UnixMilli(session.CreatedAt),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// UpdateNotation replaces the stored notation after an accepted move.
func (Matches) UpdateNotation(ctx context.Context, gameID uuid.UUID, notation string) error {
	q := `UPDATE matches SET notation=$1 WHERE id=$2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, notation, gameID)
		return err
	})
}

// RecordOutcome closes the match row with its result and rating movement.
func (Matches) RecordOutcome(ctx context.Context, gameID uuid.UUID, outcome *models.Outcome) error {
	q := `UPDATE matches
	      SET ongoing=FALSE, reason=$1, result=$2, winner=$3,
	          white_delta=$4, black_delta=$5, finished_at=$6
	      WHERE id=$7`
	var winner *string
	if outcome.Winner != nil {
		w := string(*outcome.Winner)
		winner = &w
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			outcome.Reason, outcome.Result, winner,
			outcome.WhiteRatingDelta, outcome.BlackRatingDelta, time.Now(), gameID,
		)
		return err
	})
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kacperw/chesshub/internal/auth"
	"github.com/kacperw/chesshub/internal/models"
)

func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, elo_bullet, elo_blitz, elo_rapid)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username,
			user.EloBullet, user.EloBlitz, user.EloRapid,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, elo_bullet, elo_blitz, elo_rapid
	FROM users
	WHERE email=$1
	`
	err := DB.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.EloBullet, &u.EloBlitz, &u.EloRapid,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, elo_bullet, elo_blitz, elo_rapid
	FROM users
	WHERE username=$1
	`
	err := DB.QueryRow(ctx, q, username).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.EloBullet, &u.EloBlitz, &u.EloRapid,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(auth.Identity{AccountID: user.ID.String(), Username: user.Username})
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}

// ratingColumn maps a game type to its users column. The switch, not string
// interpolation of caller input, keeps the query safe.
func ratingColumn(gameType models.GameType) (string, error) {
	switch gameType {
	case models.GameTypeBullet:
		return "elo_bullet", nil
	case models.GameTypeBlitz:
		return "elo_blitz", nil
	case models.GameTypeRapid:
		return "elo_rapid", nil
	}
	return "", fmt.Errorf("unknown game type %q", gameType)
}

// Users adapts the package to the matchmaking and session interfaces.
type Users struct{}

// FindByUsername returns nil with no error when the username is unknown.
func (Users) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := GetUserByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// UpdateRating stores the user's post-match rating for one game type.
func (Users) UpdateRating(ctx context.Context, username string, gameType models.GameType, newRating int, asOf time.Time) error {
	col, err := ratingColumn(gameType)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE users SET %s=$1, rating_updated_at=$2 WHERE username=$3`, col)
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, newRating, asOf, username)
		return err
	})
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"tigertrust/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// ErrStaleWrite means the stored record changed between load and commit.
var ErrStaleWrite = errors.New("profile account changed since it was loaded")

// AccountWrite is one accepted operation: the new record bytes and the journal entry,
// persisted together or not at all.
type AccountWrite struct {
	Address  domain.Address
	Owner    domain.Pubkey
	Data     []byte
	Previous []byte // nil when the account is being created
	Event    domain.ProfileEvent
	At       time.Time
}

type ProfileRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewProfileRepository(sqlDB *sql.DB, logger zerolog.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *ProfileRepository) GetAccount(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM profile_accounts WHERE address = ?`, addr.String()).Scan(&data)
	if err == sql.ErrNoRows {
		r.logger.Debug().Str("address", addr.String()).Msg("profile account not found")
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("address", addr.String()).Msg("failed to get profile account")
		return nil, false, fmt.Errorf("failed to get profile account: %w", err)
	}
	return data, true, nil
}

func (r *ProfileRepository) Commit(ctx context.Context, w AccountWrite) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if w.Previous == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profile_accounts (address, owner, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			w.Address.String(), w.Owner.String(), w.Data, w.At, w.At)
		if err != nil {
			return fmt.Errorf("failed to insert profile account %s: %w", w.Address, err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE profile_accounts SET data = ?, updated_at = ? WHERE address = ? AND data = ?`,
			w.Data, w.At, w.Address.String(), w.Previous)
		if err != nil {
			return fmt.Errorf("failed to update profile account %s: %w", w.Address, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n != 1 {
			r.logger.Warn().Str("address", w.Address.String()).Msg("profile account changed under us")
			return ErrStaleWrite
		}
	}

	if err := insertEvent(ctx, tx, w.Event); err != nil {
		return err
	}

	return tx.Commit()
}

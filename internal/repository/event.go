package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"tigertrust/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

func insertEvent(ctx context.Context, tx *sql.Tx, e domain.ProfileEvent) error {
	id := e.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM profile_events WHERE address = ?`,
		e.Address.String()).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate event sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profile_events (
			id, address, operation, caller, amount, is_default, verified,
			old_score, new_score, old_tier, new_tier, seq, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		e.Address.String(),
		e.Operation,
		e.Caller.String(),
		strconv.FormatUint(e.Amount, 10),
		e.IsDefault,
		e.Verified,
		int64(e.OldScore),
		int64(e.NewScore),
		int64(e.OldTier),
		int64(e.NewTier),
		seq,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile event: %w", err)
	}
	return nil
}

func (r *ProfileRepository) ListEvents(ctx context.Context, addr domain.Address, limit int) ([]domain.ProfileEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, operation, caller, amount, is_default, verified,
			old_score, new_score, old_tier, new_tier, created_at
		FROM profile_events
		WHERE address = ?
		ORDER BY seq DESC
		LIMIT ?`, addr.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile events: %w", err)
	}
	defer rows.Close()

	var result []domain.ProfileEvent
	for rows.Next() {
		var (
			e                  domain.ProfileEvent
			address, caller    string
			amount             string
			oldScore, newScore int64
			oldTier, newTier   int64
		)
		if err := rows.Scan(&e.ID, &address, &e.Operation, &caller, &amount, &e.IsDefault, &e.Verified,
			&oldScore, &newScore, &oldTier, &newTier, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile event: %w", err)
		}
		if e.Address, err = domain.ParsePubkey(address); err != nil {
			return nil, fmt.Errorf("profile event %s: %w", e.ID, err)
		}
		if e.Caller, err = domain.ParsePubkey(caller); err != nil {
			return nil, fmt.Errorf("profile event %s: %w", e.ID, err)
		}
		if e.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("profile event %s amount: %w", e.ID, err)
		}
		e.OldScore, e.NewScore = uint16(oldScore), uint16(newScore)
		e.OldTier, e.NewTier = domain.Tier(oldTier), domain.Tier(newTier)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile events: %w", err)
	}
	return result, nil
}

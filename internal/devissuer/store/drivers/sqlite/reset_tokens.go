package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/domain"
)

type resetTokensRepo struct {
	q querier
}

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t domain.ResetToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt.Unix(), time.Now().Unix(),
	)
	return mapConstraint(err)
}

func (r *resetTokensRepo) GetResetTokenByHash(ctx context.Context, hash string) (domain.ResetToken, error) {
	var (
		t                    domain.ResetToken
		expiresAt, createdAt int64
		usedAt               sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, created_at
		   FROM reset_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &usedAt, &createdAt)
	if err != nil {
		return domain.ResetToken{}, mapNotFound(err)
	}

	t.ExpiresAt = unixTime(expiresAt)
	t.CreatedAt = unixTime(createdAt)
	if usedAt.Valid {
		ts := unixTime(usedAt.Int64)
		t.UsedAt = &ts
	}
	return t, nil
}

func (r *resetTokensRepo) MarkResetTokenUsed(ctx context.Context, id string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE reset_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().Unix(), id,
	))
}

func (r *resetTokensRepo) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM reset_tokens WHERE expires_at <= ? OR used_at IS NOT NULL`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

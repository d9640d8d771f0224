// internal/store/account_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

// AccountStore reads and updates account identities in Postgres.
type AccountStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewAccountStore(db *sql.DB, log logger.Logger) *AccountStore {
	return &AccountStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "account-store"}),
	}
}

// Get fetches one account, or models.ErrNotFound.
func (s *AccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM accounts
		WHERE id = $1`, id).
		Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Role, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acct, nil
}

// updateRoleTx applies a role transition inside a caller-owned transaction.
// Application lifecycle writes carry their role change so both commit or
// roll back together.
func updateRoleTx(ctx context.Context, tx *sql.Tx, id string, role models.Role) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update account role: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListAdmins returns every administrator account, used for review-queue
// broadcasts on new submissions.
func (s *AccountStore) ListAdmins(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM accounts
		WHERE role = $1`, string(models.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		var acct models.Account
		if err := rows.Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Role, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan admin row: %w", err)
		}
		out = append(out, &acct)
	}
	return out, rows.Err()
}

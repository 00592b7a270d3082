package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id             BIGSERIAL PRIMARY KEY,
    batch_id       TEXT NOT NULL,
    vendor         TEXT NOT NULL DEFAULT '',
    amount         NUMERIC(18, 2) NOT NULL DEFAULT 0,
    account_number TEXT,
    ifsc_code      TEXT,
    remarks        TEXT,
    status         TEXT NOT NULL,
    user_id        TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS transactions_batch_idx ON transactions (batch_id, user_id);
CREATE INDEX IF NOT EXISTS transactions_owner_status_idx ON transactions (user_id, status);
`

func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

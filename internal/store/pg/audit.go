package pg

import (
	"context"
	"database/sql"

	"erbms.org/internal/audit"
)

// AuditStore appends to the audit_log table. Rows are never updated.
type AuditStore struct{ db *sql.DB }

var _ audit.Store = (*AuditStore)(nil)

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.db} }

func (s *AuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, user_id, action, ip_address, created_at)
		values ($1, $2, $3, $4, $5)
	`, entry.ID, nullIfEmpty(entry.UserID), entry.Action, nullIfEmpty(entry.IPAddress), entry.Timestamp)
	return err
}

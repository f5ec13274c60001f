package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "otprelay/pkg/errors"
)

// StoredMessage is one row of the message store.
type StoredMessage struct {
	ID         int64
	Address    string
	Body       string
	ReceivedAt time.Time
}

// Inbox is the queryable message store. Permission failures are reported as
// errors.ErrPermissionDenied.
type Inbox interface {
	Recent(ctx context.Context, n int) ([]StoredMessage, error)
	MaxID(ctx context.Context) (int64, error)
}

const pqInsufficientPrivilege = "42501"

type PostgresInbox struct {
	db *sql.DB
}

func NewPostgresInbox(db *sql.DB) *PostgresInbox {
	return &PostgresInbox{db: db}
}

// Recent returns the n most recent messages, newest first.
func (i *PostgresInbox) Recent(ctx context.Context, n int) ([]StoredMessage, error) {
	query := `
		SELECT id, address, body, received_at
		FROM sms_inbox
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := i.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, mapInboxError("query inbox", err)
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.Address, &m.Body, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inbox row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapInboxError("iterate inbox", err)
	}
	return msgs, nil
}

func (i *PostgresInbox) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := i.db.QueryRowContext(ctx, `SELECT MAX(id) FROM sms_inbox`).Scan(&id); err != nil {
		return 0, mapInboxError("query inbox max id", err)
	}
	return id.Int64, nil
}

// Insert stores a message and returns its id. Used by the intake API and tests.
func (i *PostgresInbox) Insert(ctx context.Context, m StoredMessage) (int64, error) {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	var id int64
	err := i.db.QueryRowContext(ctx,
		`INSERT INTO sms_inbox (address, body, received_at) VALUES ($1, $2, $3) RETURNING id`,
		m.Address, m.Body, m.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapInboxError("insert inbox row", err)
	}
	return id, nil
}

func mapInboxError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInsufficientPrivilege {
		return apperrors.ErrPermissionDenied.WithCause(err).WithDetail("operation", op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

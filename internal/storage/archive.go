package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
)

// Archive persists transcript messages that fell out of the live history
// window, so a thread's full transcript survives state expiry.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive {
	if db == nil {
		panic("storage: db cannot be nil")
	}
	return &Archive{db: db}
}

var _ conversation.Archiver = (*Archive)(nil)

// ArchiveMessages appends messages for a thread, in order, in one
// transaction.
func (a *Archive) ArchiveMessages(ctx context.Context, threadID string, messages []conversation.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: failed to begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO archived_messages (thread_id, role, content) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("storage: failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		if _, err := stmt.ExecContext(ctx, threadID, msg.Role, msg.Content); err != nil {
			return fmt.Errorf("storage: failed to archive message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: failed to commit archive tx: %w", err)
	}
	return nil
}

// Messages returns a thread's archived messages, oldest first.
func (a *Archive) Messages(ctx context.Context, threadID string) ([]conversation.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT role, content FROM archived_messages WHERE thread_id = $1 ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to query archive: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		var msg conversation.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("storage: failed to scan archived message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: archive rows error: %w", err)
	}
	return messages, nil
}

// DeleteThread removes a thread's archived transcript.
func (a *Archive) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM archived_messages WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("storage: failed to delete archived thread: %w", err)
	}
	return nil
}

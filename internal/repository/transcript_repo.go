package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/agentchat/internal/model"
)

// TranscriptRepository provides data access for chat sessions and their turns.
type TranscriptRepository struct {
	db *sql.DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// CreateSession inserts a new chat session.
func (r *TranscriptRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, endpoint, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Endpoint,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a chat session by its ID.
func (r *TranscriptRepository) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	query := `
		SELECT s.id, s.endpoint, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM chat_sessions s
		WHERE s.id = ?
	`

	session := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Endpoint,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.MessageCount,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListSessions retrieves all chat sessions, newest first.
func (r *TranscriptRepository) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	query := `
		SELECT s.id, s.endpoint, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM chat_sessions s
		ORDER BY s.created_at DESC, s.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.ChatSession
	for rows.Next() {
		session := &model.ChatSession{}
		err := rows.Scan(
			&session.ID,
			&session.Endpoint,
			&session.CreatedAt,
			&session.UpdatedAt,
			&session.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a chat session and, by cascade, its transcript.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// SaveTurn appends one completed turn (the user message and the assistant
// reply with its tools) in a single transaction.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, sessionID string, user, assistant model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	for _, msg := range []model.Message{user, assistant} {
		seq++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, sessionID, seq, msg.Role, msg.Content, now)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		for i, tool := range msg.Tools {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tool_executions (id, message_id, seq, name, input, output, status)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, tool.ID, msg.ID, i, tool.Name, tool.Input, tool.Output, tool.Status)
			if err != nil {
				return fmt.Errorf("failed to insert tool execution: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// ListMessages returns the persisted transcript of a session in order.
func (r *TranscriptRepository) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content
		FROM messages
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	index := make(map[string]int)
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.Role == model.RoleAssistant {
			msg.Tools = []model.ToolExecution{}
		}
		index[msg.ID] = len(messages)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	toolRows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.message_id, t.name, t.input, t.output, t.status
		FROM tool_executions t
		JOIN messages m ON m.id = t.message_id
		WHERE m.session_id = ?
		ORDER BY m.seq, t.seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool executions: %w", err)
	}
	defer toolRows.Close()

	for toolRows.Next() {
		var tool model.ToolExecution
		var messageID string
		var output sql.NullString
		if err := toolRows.Scan(&tool.ID, &messageID, &tool.Name, &tool.Input, &output, &tool.Status); err != nil {
			return nil, fmt.Errorf("failed to scan tool execution: %w", err)
		}
		if output.Valid {
			out := output.String
			tool.Output = &out
		}
		if i, ok := index[messageID]; ok {
			messages[i].Tools = append(messages[i].Tools, tool)
		}
	}
	if err := toolRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool executions: %w", err)
	}

	return messages, nil
}

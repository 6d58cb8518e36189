package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tickerlab/finsight/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Session Operations
// =============================================================================

// sessionRow represents a session row in the database.
type sessionRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	return createSession(ctx, s.db, session)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return getSession(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	return updateSession(ctx, s.db, session)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return deleteSession(ctx, s.db, id)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts ListOptions) ([]domain.Session, error) {
	return listSessions(ctx, s.db, opts)
}

func (s *SQLiteStore) ListIdleSessions(ctx context.Context, idleSince time.Time, limit int) ([]domain.Session, error) {
	return listIdleSessions(ctx, s.db, idleSince, limit)
}

// =============================================================================
// Message Operations
// =============================================================================

// messageRow represents a message row in the database.
type messageRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	Role      string `db:"role"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	return createMessage(ctx, s.db, message)
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Message, error) {
	return listMessages(ctx, s.db, sessionID, opts)
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID               string  `db:"id"`
	SessionID        string  `db:"session_id"`
	Status           string  `db:"status"`
	Input            string  `db:"input"`
	Output           string  `db:"output"`
	ErrorMessage     string  `db:"error_message"`
	PromptTokens     int     `db:"prompt_tokens"`
	CompletionTokens int     `db:"completion_tokens"`
	ToolCalls        *string `db:"tool_calls"`
	CreatedAt        string  `db:"created_at"`
	UpdatedAt        string  `db:"updated_at"`
	StartedAt        *string `db:"started_at"`
	CompletedAt      *string `db:"completed_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) ListRunsBySession(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Run, error) {
	return listRunsBySession(ctx, s.db, sessionID, opts)
}

// =============================================================================
// Usage Event Operations
// =============================================================================

// usageEventRow represents a usage event row in the database.
type usageEventRow struct {
	ID         string  `db:"id"`
	RunID      string  `db:"run_id"`
	SessionID  string  `db:"session_id"`
	EventType  string  `db:"event_type"`
	Quantity   int64   `db:"quantity"`
	Metadata   string  `db:"metadata"`
	Timestamp  string  `db:"timestamp"`
	ReportedAt *string `db:"reported_at"`
	CreatedAt  string  `db:"created_at"`
}

func (s *SQLiteStore) CreateUsageEvent(ctx context.Context, event *domain.UsageEvent) error {
	return createUsageEvent(ctx, s.db, event)
}

func (s *SQLiteStore) GetUnreportedEvents(ctx context.Context, limit int) ([]domain.UsageEvent, error) {
	return getUnreportedEvents(ctx, s.db, limit)
}

func (s *SQLiteStore) MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error {
	return markEventsReported(ctx, s.db, ids, reportedAt)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	return createSession(ctx, s.tx, session)
}

func (s *txSQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return getSession(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	return updateSession(ctx, s.tx, session)
}

func (s *txSQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return deleteSession(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListSessions(ctx context.Context, opts ListOptions) ([]domain.Session, error) {
	return listSessions(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListIdleSessions(ctx context.Context, idleSince time.Time, limit int) ([]domain.Session, error) {
	return listIdleSessions(ctx, s.tx, idleSince, limit)
}

func (s *txSQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	return createMessage(ctx, s.tx, message)
}

func (s *txSQLiteStore) ListMessages(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Message, error) {
	return listMessages(ctx, s.tx, sessionID, opts)
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) ListRunsBySession(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Run, error) {
	return listRunsBySession(ctx, s.tx, sessionID, opts)
}

func (s *txSQLiteStore) CreateUsageEvent(ctx context.Context, event *domain.UsageEvent) error {
	return createUsageEvent(ctx, s.tx, event)
}

func (s *txSQLiteStore) GetUnreportedEvents(ctx context.Context, limit int) ([]domain.UsageEvent, error) {
	return getUnreportedEvents(ctx, s.tx, limit)
}

func (s *txSQLiteStore) MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error {
	return markEventsReported(ctx, s.tx, ids, reportedAt)
}

// WithTx on a transaction store reuses the open transaction; SQLite has no
// nested transactions.
func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

// Close is a no-op within a transaction.
func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Session Helpers
// =============================================================================

func createSession(ctx context.Context, exec executor, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES (:id, :title, :created_at, :updated_at)`

	row := map[string]any{
		"id":         session.ID,
		"title":      session.Title,
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"updated_at": session.UpdatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: sessions.id") {
			return NewStoreError("CreateSession", "session", session.ID, "session with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateSession", "session", session.ID, err.Error(), err)
	}

	return nil
}

func getSession(ctx context.Context, exec executor, id string) (*domain.Session, error) {
	query := `SELECT * FROM sessions WHERE id = ?`

	var row sessionRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSession", "session", id, "session not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSession", "session", id, err.Error(), err)
	}

	return rowToSession(&row), nil
}

func updateSession(ctx context.Context, exec executor, session *domain.Session) error {
	query := `
		UPDATE sessions SET
			title = :title,
			updated_at = :updated_at
		WHERE id = :id`

	row := map[string]any{
		"id":         session.ID,
		"title":      session.Title,
		"updated_at": session.UpdatedAt.Format(time.RFC3339),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateSession", "session", session.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateSession", "session", session.ID, "session not found", ErrNotFound)
	}

	return nil
}

func deleteSession(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM sessions WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteSession", "session", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteSession", "session", id, "session not found", ErrNotFound)
	}

	return nil
}

func listSessions(ctx context.Context, exec executor, opts ListOptions) ([]domain.Session, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM sessions ORDER BY updated_at DESC, rowid DESC LIMIT ? OFFSET ?`

	var rows []sessionRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListSessions", "session", "", err.Error(), err)
	}

	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, *rowToSession(&row))
	}

	return sessions, nil
}

func listIdleSessions(ctx context.Context, exec executor, idleSince time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT * FROM sessions WHERE updated_at < ? ORDER BY updated_at ASC LIMIT ?`

	var rows []sessionRow
	err := exec.SelectContext(ctx, &rows, query, idleSince.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, NewStoreError("ListIdleSessions", "session", "", err.Error(), err)
	}

	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, *rowToSession(&row))
	}

	return sessions, nil
}

// =============================================================================
// Message Helpers
// =============================================================================

func createMessage(ctx context.Context, exec executor, message *domain.Message) error {
	query := `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (:id, :session_id, :role, :content, :created_at)`

	row := map[string]any{
		"id":         message.ID,
		"session_id": message.SessionID,
		"role":       string(message.Role),
		"content":    message.Content,
		"created_at": message.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: messages.id") {
			return NewStoreError("CreateMessage", "message", message.ID, "message with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateMessage", "message", message.ID, "session does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateMessage", "message", message.ID, err.Error(), err)
	}

	return nil
}

// listMessages returns a session's messages in conversation order. The
// rowid tiebreak keeps same-second inserts ordered.
func listMessages(ctx context.Context, exec executor, sessionID string, opts ListOptions) ([]domain.Message, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`

	var rows []messageRow
	err := exec.SelectContext(ctx, &rows, query, sessionID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListMessages", "message", "", err.Error(), err)
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, *rowToMessage(&row))
	}

	return messages, nil
}

// =============================================================================
// Run Helpers
// =============================================================================

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	toolCallsJSON, err := marshalToolCalls(run.ToolCalls)
	if err != nil {
		return NewStoreError("CreateRun", "run", run.ID, "failed to serialize tool calls", ErrInvalidData)
	}

	query := `
		INSERT INTO runs (
			id, session_id, status, input, output, error_message,
			prompt_tokens, completion_tokens, tool_calls,
			created_at, updated_at, started_at, completed_at
		) VALUES (
			:id, :session_id, :status, :input, :output, :error_message,
			:prompt_tokens, :completion_tokens, :tool_calls,
			:created_at, :updated_at, :started_at, :completed_at
		)`

	row := map[string]any{
		"id":                run.ID,
		"session_id":        run.SessionID,
		"status":            string(run.Status),
		"input":             run.Input,
		"output":            run.Output,
		"error_message":     run.ErrorMessage,
		"prompt_tokens":     run.PromptTokens,
		"completion_tokens": run.CompletionTokens,
		"tool_calls":        toolCallsJSON,
		"created_at":        run.CreatedAt.Format(time.RFC3339),
		"updated_at":        run.UpdatedAt.Format(time.RFC3339),
		"started_at":        formatOptionalTime(run.StartedAt),
		"completed_at":      formatOptionalTime(run.CompletedAt),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateRun", "run", run.ID, "session does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}

	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	return rowToRun(&row)
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	toolCallsJSON, err := marshalToolCalls(run.ToolCalls)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, "failed to serialize tool calls", ErrInvalidData)
	}

	query := `
		UPDATE runs SET
			status = :status,
			output = :output,
			error_message = :error_message,
			prompt_tokens = :prompt_tokens,
			completion_tokens = :completion_tokens,
			tool_calls = :tool_calls,
			updated_at = :updated_at,
			started_at = :started_at,
			completed_at = :completed_at
		WHERE id = :id`

	row := map[string]any{
		"id":                run.ID,
		"status":            string(run.Status),
		"output":            run.Output,
		"error_message":     run.ErrorMessage,
		"prompt_tokens":     run.PromptTokens,
		"completion_tokens": run.CompletionTokens,
		"tool_calls":        toolCallsJSON,
		"updated_at":        run.UpdatedAt.Format(time.RFC3339),
		"started_at":        formatOptionalTime(run.StartedAt),
		"completed_at":      formatOptionalTime(run.CompletedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}

	return nil
}

func listRunsBySession(ctx context.Context, exec executor, sessionID string, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	var rows []runRow
	err := exec.SelectContext(ctx, &rows, query, sessionID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRunsBySession", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

// =============================================================================
// Usage Event Helpers
// =============================================================================

func createUsageEvent(ctx context.Context, exec executor, event *domain.UsageEvent) error {
	query := `
		INSERT INTO usage_events (
			id, run_id, session_id, event_type, quantity, metadata,
			timestamp, reported_at, created_at
		) VALUES (
			:id, :run_id, :session_id, :event_type, :quantity, :metadata,
			:timestamp, :reported_at, :created_at
		)`

	row := map[string]any{
		"id":          event.ID,
		"run_id":      event.RunID,
		"session_id":  event.SessionID,
		"event_type":  string(event.EventType),
		"quantity":    event.Quantity,
		"metadata":    event.Metadata,
		"timestamp":   event.Timestamp.Format(time.RFC3339),
		"reported_at": formatOptionalTime(event.ReportedAt),
		"created_at":  event.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: usage_events.id") {
			return NewStoreError("CreateUsageEvent", "usage_event", event.ID, "event with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateUsageEvent", "usage_event", event.ID, err.Error(), err)
	}

	return nil
}

func getUnreportedEvents(ctx context.Context, exec executor, limit int) ([]domain.UsageEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT * FROM usage_events WHERE reported_at IS NULL ORDER BY created_at ASC, rowid ASC LIMIT ?`

	var rows []usageEventRow
	err := exec.SelectContext(ctx, &rows, query, limit)
	if err != nil {
		return nil, NewStoreError("GetUnreportedEvents", "usage_event", "", err.Error(), err)
	}

	events := make([]domain.UsageEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, *rowToUsageEvent(&row))
	}

	return events, nil
}

func markEventsReported(ctx context.Context, exec executor, ids []string, reportedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE usage_events SET reported_at = ? WHERE id IN (?)`,
		reportedAt.UTC().Format(time.RFC3339), ids,
	)
	if err != nil {
		return NewStoreError("MarkEventsReported", "usage_event", "", err.Error(), ErrInvalidData)
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return NewStoreError("MarkEventsReported", "usage_event", "", err.Error(), err)
	}

	return nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowToSession(row *sessionRow) *domain.Session {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &domain.Session{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func rowToMessage(row *messageRow) *domain.Message {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.Message{
		ID:        row.ID,
		SessionID: row.SessionID,
		Role:      domain.Role(row.Role),
		Content:   row.Content,
		CreatedAt: createdAt,
	}
}

func rowToRun(row *runRow) (*domain.Run, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var toolCalls []domain.ToolCallRecord
	if row.ToolCalls != nil && *row.ToolCalls != "" {
		if err := json.Unmarshal([]byte(*row.ToolCalls), &toolCalls); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse tool calls", ErrInvalidData)
		}
	}

	return &domain.Run{
		ID:               row.ID,
		SessionID:        row.SessionID,
		Status:           domain.RunStatus(row.Status),
		Input:            row.Input,
		Output:           row.Output,
		ErrorMessage:     row.ErrorMessage,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
		ToolCalls:        toolCalls,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		StartedAt:        parseOptionalTime(row.StartedAt),
		CompletedAt:      parseOptionalTime(row.CompletedAt),
	}, nil
}

func rowToUsageEvent(row *usageEventRow) *domain.UsageEvent {
	timestamp, _ := time.Parse(time.RFC3339, row.Timestamp)
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.UsageEvent{
		ID:         row.ID,
		RunID:      row.RunID,
		SessionID:  row.SessionID,
		EventType:  domain.EventType(row.EventType),
		Quantity:   row.Quantity,
		Metadata:   row.Metadata,
		Timestamp:  timestamp,
		ReportedAt: parseOptionalTime(row.ReportedAt),
		CreatedAt:  createdAt,
	}
}

func marshalToolCalls(calls []domain.ToolCallRecord) (*string, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, _ := time.Parse(time.RFC3339, *s)
	return &t
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('STUDENT', 'TEACHER', 'GUEST')),
        created_at DATETIME NOT NULL,
        last_login_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS exams (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        topic TEXT NOT NULL,
        difficulty TEXT NOT NULL,
        questions INTEGER NOT NULL,
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_exams_user ON exams (user_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

// UpsertUser records a login, creating the user on first sight and updating
// the role and last login otherwise.
func (s *SQLiteStore) UpsertUser(ctx context.Context, externalUserID, role string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (external_user_id, role, created_at, last_login_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (external_user_id) DO UPDATE SET role = excluded.role, last_login_at = excluded.last_login_at`,
		externalUserID, role, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUserByExternalID(ctx, externalUserID)
}

func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, external_user_id, role, created_at, last_login_at FROM users WHERE external_user_id = ?", externalUserID).
		Scan(&user.ID, &user.ExternalUserID, &user.Role, &user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Exam methods

func (s *SQLiteStore) CreateExam(ctx context.Context, exam *Exam) error {
	exam.ID = uuid.NewString()
	exam.CreatedAt = time.Now().UTC()

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO exams (id, user_id, topic, difficulty, questions, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare exam insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, exam.ID, exam.UserID, exam.Topic, exam.Difficulty, exam.Questions, exam.Content, exam.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute exam insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExam(ctx context.Context, examID string, userID int64) (*Exam, error) {
	var exam Exam
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, topic, difficulty, questions, content, created_at FROM exams WHERE id = ? AND user_id = ?", examID, userID).
		Scan(&exam.ID, &exam.UserID, &exam.Topic, &exam.Difficulty, &exam.Questions, &exam.Content, &exam.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &exam, nil
}

// ListExams returns the user's exams, newest first.
func (s *SQLiteStore) ListExams(ctx context.Context, userID int64, limit int) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, topic, difficulty, questions, content, created_at FROM exams WHERE user_id = ? ORDER BY created_at DESC LIMIT ?", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exams: %w", err)
	}
	defer rows.Close()

	exams := []Exam{}
	for rows.Next() {
		var exam Exam
		if err := rows.Scan(&exam.ID, &exam.UserID, &exam.Topic, &exam.Difficulty, &exam.Questions, &exam.Content, &exam.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exam row: %w", err)
		}
		exams = append(exams, exam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exams: %w", err)
	}
	return exams, nil
}

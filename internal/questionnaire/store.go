package questionnaire

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed sql/schema.sql
var schemaFS embed.FS

// Store manages questionnaire persistence in SQLite.
//
// The connection handle is process-wide lifecycle-managed state: Connect is
// idempotent and mutex-guarded so concurrent ensure-connected calls from
// multiple requests serialize into a single connect attempt.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewStore creates a store for the database at path. No connection is made
// until Connect.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Connect opens the database and initializes the schema. Calling it again
// after a successful connect is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening questionnaire database: %w", err)
	}

	schema, err := schemaFS.ReadFile("sql/schema.sql")
	if err != nil {
		db.Close()
		return fmt.Errorf("reading embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return fmt.Errorf("initializing schema: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("questionnaire store is not connected")
	}
	return s.db, nil
}

// SaveQuestion inserts or replaces a question.
func (s *Store) SaveQuestion(ctx context.Context, q Question) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO questions (id, text, type) VALUES (?, ?, ?)`,
		q.ID, q.Text, string(q.Type),
	)
	if err != nil {
		return fmt.Errorf("saving question %s: %w", q.ID, err)
	}
	return nil
}

// SaveResponse inserts a response. A missing ID or CreatedAt is filled in.
func (s *Store) SaveResponse(ctx context.Context, r Response) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var likert any
	if r.LikertValue != nil {
		likert = *r.LikertValue
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO responses (id, user_id, question_id, likert_value, audio_path, transcription, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.QuestionID, likert, r.AudioPath, r.Transcription, r.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("saving response: %w", err)
	}
	return r.ID, nil
}

// ListResponses returns all of a user's responses with their questions,
// ordered by creation time ascending. The ordering keeps ingestion
// deterministic.
func (s *Store) ListResponses(ctx context.Context, userID int64) ([]Response, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.question_id, r.likert_value, r.audio_path, r.transcription, r.created_at,
		        q.text, q.type
		 FROM responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE r.user_id = ?
		 ORDER BY r.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing responses for user %d: %w", userID, err)
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var (
			r      Response
			likert sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.QuestionID, &likert, &r.AudioPath, &r.Transcription, &r.CreatedAt,
			&r.Question.Text, &r.Question.Type,
		); err != nil {
			return nil, fmt.Errorf("scanning response row: %w", err)
		}
		r.Question.ID = r.QuestionID
		if likert.Valid {
			v := likert.Int64
			r.LikertValue = &v
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating response rows: %w", err)
	}
	return responses, nil
}

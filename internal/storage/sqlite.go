package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/feedbackdesk/internal/feedback"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding submitted feedback.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "feedback.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const feedbackColumns = `id, customer_name, customer_email, rating, comments, submission_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (feedback.Record, error) {
	var (
		r         feedback.Record
		name      sql.NullString
		email     sql.NullString
		submitted string
	)
	if err := row.Scan(&r.ID, &name, &email, &r.Rating, &r.Comments, &submitted); err != nil {
		return feedback.Record{}, err
	}
	if name.Valid {
		r.CustomerName = &name.String
	}
	if email.Valid {
		r.Email = &email.String
	}
	t, err := time.Parse(time.RFC3339Nano, submitted)
	if err != nil {
		return feedback.Record{}, fmt.Errorf("parsing submission_date: %w", err)
	}
	r.SubmissionDate = feedback.Timestamp{Time: t}
	return r, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateFeedback inserts a submission with PENDING status and returns the stored record.
func (s *Store) CreateFeedback(sub feedback.Submission) (feedback.Record, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO feedback (customer_name, customer_email, rating, comments, submission_date, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullable(sub.CustomerName), nullable(sub.Email), sub.Rating, sub.Comments,
		now.Format(time.RFC3339Nano), StatusPending,
	)
	if err != nil {
		return feedback.Record{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return feedback.Record{}, err
	}
	return s.GetFeedback(id)
}

func (s *Store) GetFeedback(id int64) (feedback.Record, error) {
	r, err := scanRecord(s.db.QueryRow(`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Record{}, ErrNotFound
	}
	return r, err
}

// ListFeedback returns every record in insertion order.
func (s *Store) ListFeedback() ([]feedback.Record, error) {
	rows, err := s.db.Query(`SELECT ` + feedbackColumns + ` FROM feedback ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []feedback.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateFeedback applies the non-nil fields of p to the record with the given id.
func (s *Store) UpdateFeedback(id int64, p Patch) (feedback.Record, error) {
	var (
		sets []string
		args []any
	)
	if p.CustomerName != nil {
		sets = append(sets, "customer_name = ?")
		args = append(args, *p.CustomerName)
	}
	if p.Email != nil {
		sets = append(sets, "customer_email = ?")
		args = append(args, *p.Email)
	}
	if p.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, *p.Rating)
	}
	if p.Comments != nil {
		sets = append(sets, "comments = ?")
		args = append(args, *p.Comments)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}

	if len(sets) == 0 {
		return s.GetFeedback(id)
	}

	args = append(args, id)
	res, err := s.db.Exec(`UPDATE feedback SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return feedback.Record{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return feedback.Record{}, err
	}
	if n == 0 {
		return feedback.Record{}, ErrNotFound
	}
	return s.GetFeedback(id)
}

func (s *Store) DeleteFeedback(id int64) error {
	res, err := s.db.Exec(`DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AverageRating returns the mean rating, or 0 when there is no feedback.
func (s *Store) AverageRating() (float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(rating) FROM feedback`).Scan(&avg); err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// FeedbackStatus returns the review state of a record.
func (s *Store) FeedbackStatus(id int64) (string, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM feedback WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

// FeedbackStatuses maps every record id to its review state.
func (s *Store) FeedbackStatuses() (map[int64]string, error) {
	rows, err := s.db.Query(`SELECT id, status FROM feedback`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]string{}
	for rows.Next() {
		var (
			id     int64
			status string
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, rows.Err()
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// timestampLayout is fixed width so lexical order in SQLite is time order.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// PassRecord is one stored reconcile pass.
type PassRecord struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	PWMMin      byte          `json:"pwm_min"`
	PWMMax      byte          `json:"pwm_max"`
	Brightness  byte          `json:"brightness"`
	Diverged    bool          `json:"diverged"`
	Corrections int           `json:"corrections"`
	Error       string        `json:"error,omitempty"`
}

// WriteRecord is one stored register write.
type WriteRecord struct {
	ID        int64     `json:"id"`
	PassID    string    `json:"pass_id,omitempty"`
	Register  string    `json:"register"`
	Opcode    byte      `json:"opcode"`
	Value     byte      `json:"value"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	WrittenAt time.Time `json:"written_at"`
}

// Repository stores and lists history.
type Repository interface {
	RecordPass(ctx context.Context, rec PassRecord) error
	RecordWrite(ctx context.Context, rec WriteRecord) error
	ListPasses(ctx context.Context, limit int) ([]PassRecord, error)
	ListWrites(ctx context.Context, limit int) ([]WriteRecord, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the migrated history schema.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordPass inserts a pass.
func (r *SQLiteRepository) RecordPass(ctx context.Context, rec PassRecord) error {
	if rec.ID == "" {
		return errors.New("pass id is required")
	}

	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconcile_passes
		 (id, started_at, duration_ms, pwm_min, pwm_max, brightness, diverged, corrections, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		formatTimestamp(rec.StartedAt),
		rec.Duration.Milliseconds(),
		int(rec.PWMMin),
		int(rec.PWMMax),
		int(rec.Brightness),
		boolToInt(rec.Diverged),
		rec.Corrections,
		errText,
	)
	if err != nil {
		return fmt.Errorf("inserting reconcile pass: %w", err)
	}
	return nil
}

// RecordWrite inserts a register write.
func (r *SQLiteRepository) RecordWrite(ctx context.Context, rec WriteRecord) error {
	if rec.Register == "" {
		return errors.New("register is required")
	}

	var passID sql.NullString
	if rec.PassID != "" {
		passID = sql.NullString{String: rec.PassID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO register_writes (pass_id, register, opcode, value, kind, source, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		passID,
		rec.Register,
		int(rec.Opcode),
		int(rec.Value),
		rec.Kind,
		rec.Source,
		formatTimestamp(rec.WrittenAt),
	)
	if err != nil {
		return fmt.Errorf("inserting register write: %w", err)
	}
	return nil
}

// ListPasses returns recent passes, newest first.
// The limit defaults to 50 and is capped at 500.
func (r *SQLiteRepository) ListPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, pwm_min, pwm_max, brightness, diverged, corrections, error
		 FROM reconcile_passes
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying reconcile passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var rec PassRecord
		var startedAt string
		var durationMS int64
		var lo, hi, brightness, diverged int
		var errText sql.NullString

		if err := rows.Scan(&rec.ID, &startedAt, &durationMS, &lo, &hi, &brightness, &diverged, &rec.Corrections, &errText); err != nil {
			return nil, fmt.Errorf("scanning reconcile pass: %w", err)
		}
		if rec.StartedAt, err = parseTimestamp(startedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.PWMMin, rec.PWMMax, rec.Brightness = byte(lo), byte(hi), byte(brightness)
		rec.Diverged = diverged != 0
		rec.Error = errText.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reconcile passes: %w", err)
	}
	return out, nil
}

// ListWrites returns recent register writes, newest first.
// The limit defaults to 50 and is capped at 500.
func (r *SQLiteRepository) ListWrites(ctx context.Context, limit int) ([]WriteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, pass_id, register, opcode, value, kind, source, written_at
		 FROM register_writes
		 ORDER BY written_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying register writes: %w", err)
	}
	defer rows.Close()

	var out []WriteRecord
	for rows.Next() {
		var rec WriteRecord
		var passID sql.NullString
		var opcode, value int
		var writtenAt string

		if err := rows.Scan(&rec.ID, &passID, &rec.Register, &opcode, &value, &rec.Kind, &rec.Source, &writtenAt); err != nil {
			return nil, fmt.Errorf("scanning register write: %w", err)
		}
		if rec.WrittenAt, err = parseTimestamp(writtenAt); err != nil {
			return nil, err
		}
		rec.PassID = passID.String
		rec.Opcode, rec.Value = byte(opcode), byte(value)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating register writes: %w", err)
	}
	return out, nil
}

// Prune deletes passes and writes older than olderThan and returns the
// number of rows removed.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}
	cutoff := formatTimestamp(time.Now().Add(-olderThan))

	var total int64
	for _, q := range []string{
		"DELETE FROM reconcile_passes WHERE started_at < ?",
		"DELETE FROM register_writes WHERE written_at < ?",
	} {
		res, err := r.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

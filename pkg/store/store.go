// Package store persists conversation history and lab readings in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
)

// Speakers recorded in the conversations table.
const (
	SpeakerUser   = "user"
	SpeakerJarvis = "jarvis"
)

// Message is one stored conversation line.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
}

// SQLite is a SQLite-backed history store.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL lets the poller write while the dashboard reads.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger.With("component", "store.sqlite"),
		now:    time.Now,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s.logger.Info("database ready", "path", path)
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);

	CREATE TABLE IF NOT EXISTS environment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		temperature REAL,
		humidity REAL,
		pump INTEGER NOT NULL DEFAULT 0,
		gas_alert INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_environment_timestamp ON environment(timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveMessage stores one conversation line.
func (s *SQLite) SaveMessage(ctx context.Context, sessionID, speaker, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, timestamp, speaker, message) VALUES (?, ?, ?, ?)`,
		sessionID, s.now().UnixMilli(), speaker, message,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns up to n of the newest messages, oldest first.
func (s *SQLite) RecentMessages(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, speaker, message FROM (
			SELECT id, session_id, timestamp, speaker, message
			FROM conversations ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.SessionID, &ts, &m.Speaker, &m.Message); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveReading stores one lab reading.
func (s *SQLite) SaveReading(ctx context.Context, r telemetry.Reading) error {
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO environment (timestamp, temperature, humidity, pump, gas_alert) VALUES (?, ?, ?, ?, ?)`,
		at.UnixMilli(), r.Temperature, r.Humidity, boolInt(r.Pump), boolInt(r.GasAlert),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// RecentReadings returns up to n of the newest readings, oldest first.
func (s *SQLite) RecentReadings(ctx context.Context, n int) ([]telemetry.Reading, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, temperature, humidity, pump, gas_alert FROM (
			SELECT id, timestamp, temperature, humidity, pump, gas_alert
			FROM environment ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Reading
	for rows.Next() {
		var (
			r           telemetry.Reading
			ts          int64
			temp, hum   sql.NullFloat64
			pump, alert int
		)
		if err := rows.Scan(&ts, &temp, &hum, &pump, &alert); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		r.At = time.UnixMilli(ts)
		r.Temperature = temp.Float64
		r.Humidity = hum.Float64
		r.Pump = pump != 0
		r.GasAlert = alert != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// AverageTemperature returns the mean recorded temperature.
func (s *SQLite) AverageTemperature(ctx context.Context) (float64, bool, error) {
	return s.average(ctx, "temperature")
}

// AverageHumidity returns the mean recorded humidity.
func (s *SQLite) AverageHumidity(ctx context.Context) (float64, bool, error) {
	return s.average(ctx, "humidity")
}

func (s *SQLite) average(ctx context.Context, column string) (float64, bool, error) {
	var avg sql.NullFloat64
	// column is one of two constants above, never user input.
	err := s.db.QueryRowContext(ctx,
		"SELECT AVG("+column+") FROM environment WHERE "+column+" IS NOT NULL",
	).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("average %s: %w", column, err)
	}
	return avg.Float64, avg.Valid, nil
}

// JournalSink returns a sink that stores conversation turns.
// Other events are ignored. Wrap it in journal.NewAsync so database
// latency never reaches the session loop.
func (s *SQLite) JournalSink() journal.Sink {
	return journal.SinkFunc(func(event string, detail map[string]any) {
		var speaker string
		switch event {
		case journal.EventUserTurn:
			speaker = SpeakerUser
		case journal.EventAssistantTurn:
			speaker = SpeakerJarvis
		default:
			return
		}

		text, _ := detail["text"].(string)
		session, _ := detail["session"].(string)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.SaveMessage(ctx, session, speaker, text); err != nil {
			s.logger.Warn("failed to store message", "error", err)
		}
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ telemetry.Recorder = (*SQLite)(nil)

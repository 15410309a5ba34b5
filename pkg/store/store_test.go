package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "jarvis.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	// Reopening an existing database must not fail on the schema.
	path := filepath.Join(t.TempDir(), "again.db")
	first, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	first.Close()
	second, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	second.Close()
}

func TestMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lines := []struct{ speaker, text string }{
		{SpeakerUser, "hello"},
		{SpeakerJarvis, "Good evening, sir."},
		{SpeakerUser, "what time is it"},
		{SpeakerJarvis, "Late, sir."},
	}
	for _, l := range lines {
		if err := s.SaveMessage(ctx, "s1", l.speaker, l.text); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	got, err := s.RecentMessages(ctx, 3)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[0].Message != "Good evening, sir." || got[2].Message != "Late, sir." {
		t.Errorf("messages out of order: %+v", got)
	}
	if got[0].SessionID != "s1" || got[0].Speaker != SpeakerJarvis {
		t.Errorf("first message = %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	if none, _ := s.RecentMessages(ctx, 0); none != nil {
		t.Error("n=0 should return nothing")
	}
}

func TestAverages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.AverageTemperature(ctx); err != nil || ok {
		t.Fatalf("empty AverageTemperature() ok=%v err=%v", ok, err)
	}

	readings := []telemetry.Reading{
		{Temperature: 20, Humidity: 40, At: time.Now()},
		{Temperature: 25, Humidity: 50, GasAlert: true},
		{Temperature: 30, Humidity: 60, Pump: true},
	}
	for _, r := range readings {
		if err := s.SaveReading(ctx, r); err != nil {
			t.Fatalf("SaveReading() error = %v", err)
		}
	}

	temp, ok, err := s.AverageTemperature(ctx)
	if err != nil || !ok || math.Abs(temp-25) > 1e-9 {
		t.Errorf("AverageTemperature() = %v, %v, %v", temp, ok, err)
	}
	hum, ok, err := s.AverageHumidity(ctx)
	if err != nil || !ok || math.Abs(hum-50) > 1e-9 {
		t.Errorf("AverageHumidity() = %v, %v, %v", hum, ok, err)
	}

	recent, err := s.RecentReadings(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || !recent[0].GasAlert || !recent[1].Pump {
		t.Errorf("RecentReadings() = %+v", recent)
	}
}

func TestJournalSink_StoresTurnsOnly(t *testing.T) {
	s := openTestStore(t)
	sink := s.JournalSink()

	sink.Record(journal.EventHeard, map[string]any{"session": "abc", "text": "ignored"})
	sink.Record(journal.EventUserTurn, map[string]any{"session": "abc", "text": "what is the temperature"})
	sink.Record(journal.EventAssistantTurn, map[string]any{"session": "abc", "text": "23 degrees"})

	got, err := s.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("stored %d messages, want 2", len(got))
	}
	if got[0].Speaker != SpeakerUser || got[1].Speaker != SpeakerJarvis || got[1].SessionID != "abc" {
		t.Errorf("stored = %+v", got)
	}
}

func TestSatisfiesRecorder(t *testing.T) {
	s := openTestStore(t)
	p := telemetry.NewPoller(telemetry.NewMock(telemetry.Reading{Temperature: 21}), time.Second, telemetry.WithRecorder(s))
	p.Poll(context.Background())

	avg, ok, _ := s.AverageTemperature(context.Background())
	if !ok || avg != 21 {
		t.Errorf("poller did not persist the reading: %v %v", avg, ok)
	}
}

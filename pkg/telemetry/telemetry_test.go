package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/journal"
)

func TestHTTPClient_ReadCurrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"temperature":23.5,"humidity":48,"pump":true,"gas_alert":false}`))
	}))
	defer server.Close()

	c, err := NewHTTPClient(server.URL + "/")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	r, err := c.ReadCurrent(context.Background())
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if r.Temperature != 23.5 || r.Humidity != 48 || !r.Pump || r.GasAlert {
		t.Errorf("unexpected reading %+v", r)
	}
	if r.At.IsZero() {
		t.Error("reading should be timestamped")
	}
}

func TestHTTPClient_SetPump(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pump" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		got = r.URL.Query().Get("state")
		w.Write([]byte(`{"pump":` + map[string]string{"on": "true", "off": "false"}[got] + `}`))
	}))
	defer server.Close()

	c, _ := NewHTTPClient(server.URL)
	if err := c.SetPump(context.Background(), true); err != nil {
		t.Fatalf("SetPump(on): %v", err)
	}
	if got != "on" {
		t.Errorf("state = %q", got)
	}
	if err := c.SetPump(context.Background(), false); err != nil || got != "off" {
		t.Errorf("SetPump(off): %v, state %q", err, got)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	if _, err := NewHTTPClient(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sensor offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewHTTPClient(server.URL)
	_, err := c.ReadCurrent(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable || se.Body != "sensor offline" {
		t.Errorf("expected StatusError 503, got %v", err)
	}
}

type memRecorder struct {
	mu       sync.Mutex
	readings []Reading
}

func (m *memRecorder) SaveReading(ctx context.Context, r Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func TestPoller_GasAlertTransitions(t *testing.T) {
	alerts := []bool{false, true, true, false, true}
	i := 0
	mock := &Mock{ReadFunc: func(ctx context.Context) (Reading, error) {
		r := Reading{Temperature: 21, Humidity: 50, GasAlert: alerts[i]}
		i++
		return r, nil
	}}

	rec := journal.NewRecorder()
	store := &memRecorder{}
	p := NewPoller(mock, time.Second, WithSink(rec), WithRecorder(store))

	for range alerts {
		p.Poll(context.Background())
	}

	if n := rec.Count(journal.EventGasAlert); n != 2 {
		t.Errorf("gas alerts = %d, want 2 (one per rising edge)", n)
	}
	if len(store.readings) != len(alerts) {
		t.Errorf("persisted %d readings, want %d", len(store.readings), len(alerts))
	}
	latest, ok := p.Latest()
	if !ok || !latest.GasAlert {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
}

func TestPoller_ReadFailureKeepsLatest(t *testing.T) {
	fail := false
	mock := &Mock{ReadFunc: func(ctx context.Context) (Reading, error) {
		if fail {
			return Reading{}, errors.New("connection refused")
		}
		return Reading{Temperature: 25}, nil
	}}
	p := NewPoller(mock, 0)

	if _, ok := p.Latest(); ok {
		t.Error("no reading expected before first poll")
	}
	p.Poll(context.Background())
	fail = true
	p.Poll(context.Background())
	p.Poll(context.Background())

	if latest, ok := p.Latest(); !ok || latest.Temperature != 25 {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
}

func TestPoller_Run(t *testing.T) {
	mock := NewMock(Reading{Temperature: 22})
	p := NewPoller(mock, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v", err)
	}
	if mock.Reads() < 2 {
		t.Errorf("reads = %d, want several", mock.Reads())
	}
}

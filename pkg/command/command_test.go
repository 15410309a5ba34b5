package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/speech"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
	"github.com/teslashibe/go-jarvis/pkg/tts"
)

type fakeAsker struct {
	mu    sync.Mutex
	turns [][]conversation.Turn
	reply string
}

func (f *fakeAsker) Call(ctx context.Context, turns []conversation.Turn) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turns)
	return f.reply
}

func TestNew(t *testing.T) {
	cmd := New("  What Is The TEMPERATURE?  ")
	if cmd.Text != "What Is The TEMPERATURE?" {
		t.Errorf("Text = %q", cmd.Text)
	}
	if cmd.Key != "what is the temperature?" {
		t.Errorf("Key = %q", cmd.Key)
	}
}

func TestMatchers(t *testing.T) {
	if !Any("a", "b")("x b x") || Any("a")("xyz") || Any("b")("xbx") {
		t.Error("Any mismatch")
	}
	if !All("a", "b")("b, a") || All("a", "b")("a") || All()("anything") {
		t.Error("All mismatch")
	}
}

func TestHasPhrase(t *testing.T) {
	tests := []struct {
		key, phrase string
		want        bool
	}{
		{"what is the temperature?", "temperature", true},
		{"humidity?", "humidity", true},
		{"are the gas levels safe", "gas", true},
		{"tell me about las vegas", "gas", false},
		{"what about the gasket", "gas", false},
		{"give me the device status, please", "device status", true},
		{"device statuses", "device status", false},
		{"status of the device", "device status", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := HasPhrase(tt.key, tt.phrase); got != tt.want {
			t.Errorf("HasPhrase(%q, %q) = %v, want %v", tt.key, tt.phrase, got, tt.want)
		}
	}
}

func TestTelemetryMatchIgnoresEmbeddedWords(t *testing.T) {
	asker := &fakeAsker{reply: "Vegas is lovely, sir."}
	r := newTestRouter("", speech.NewMockListener(), asker)

	if TelemetryMatch(New("Tell me about Las Vegas").Key) {
		t.Error("las vegas must not select the telemetry route")
	}
	if got := r.Route(context.Background(), New("Tell me about Las Vegas")).Text; got != "Vegas is lovely, sir." {
		t.Errorf("Route() = %q, want chat reply", got)
	}
	if got := r.Route(context.Background(), New("Is there any gas?")).Text; got != "Gas levels in the lab are normal." {
		t.Errorf("Route() = %q, want gas reading", got)
	}
}

func TestAuthGate_EmptySecretAlwaysPasses(t *testing.T) {
	listener := speech.NewMockListener()
	speaker := tts.NewMockSpeaker()
	gate := NewAuthGate("", speaker, listener)

	for i := 0; i < 3; i++ {
		if !gate.Verify(context.Background()) {
			t.Fatal("empty secret must always pass")
		}
	}
	if listener.Calls() != 0 || len(speaker.Texts()) != 0 {
		t.Error("disabled gate must not challenge")
	}
	if gate.Enabled() {
		t.Error("Enabled() should be false")
	}
}

func TestAuthGate_Verify(t *testing.T) {
	tests := []struct {
		name  string
		heard speech.Heard
		want  bool
	}{
		{"exact", speech.Heard{Text: "friday"}, true},
		{"case-insensitive", speech.Heard{Text: "FRIDAY"}, true},
		{"trimmed", speech.Heard{Text: "  Friday "}, true},
		{"extra words", speech.Heard{Text: "friday please"}, false},
		{"wrong", speech.Heard{Text: "monday"}, false},
		{"timeout", speech.Heard{Err: &speech.CaptureError{Err: speech.ErrNoSpeech}}, false},
		{"recognition failure", speech.Heard{Err: &speech.RecognitionError{Engine: "mock", Err: errors.New("garbled")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener := speech.NewMockListener()
			listener.Push(tt.heard)
			speaker := tts.NewMockSpeaker()
			rec := journal.NewRecorder()
			gate := NewAuthGate("friday", speaker, listener, WithAuthTimeout(3*time.Second), WithAuthSink(rec))

			if got := gate.Verify(context.Background()); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
			if texts := speaker.Texts(); len(texts) != 1 || texts[0] != ReplyAuthPrompt {
				t.Errorf("prompt = %v", texts)
			}
			if to := listener.Timeouts(); len(to) != 1 || to[0] != 3*time.Second {
				t.Errorf("listen timeouts = %v", to)
			}

			event := journal.EventAuthDenied
			if tt.want {
				event = journal.EventAuthGranted
			}
			if rec.Count(event) != 1 {
				t.Errorf("expected one %s event, got %v", event, rec.Events())
			}
		})
	}
}

func newTestRouter(secret string, listener *speech.MockListener, asker Asker) *Router {
	gate := NewAuthGate(secret, tts.NewMockSpeaker(), listener)
	lab := telemetry.NewMock(telemetry.Reading{Temperature: 23.5, Humidity: 48})
	history := conversation.New("system")

	return NewRouter(NewChat(asker, history),
		WithShutdown("shutdown", Shutdown),
		WithGate(gate),
		WithRoute("device", DeviceMatch, NewDevice(nil, nil)),
		WithRoute("telemetry", TelemetryMatch, NewTelemetry(lab, nil)),
	)
}

func TestRouter_ShutdownWinsOverOtherKeywords(t *testing.T) {
	asker := &fakeAsker{reply: "chat"}
	r := newTestRouter("", speech.NewMockListener(), asker)

	reply := r.Route(context.Background(), New("Shutdown and tell me the temperature"))
	if reply.Text != ReplyShutdown || !reply.Halt {
		t.Errorf("Route() = %+v, want shutdown", reply)
	}
	if len(asker.turns) != 0 {
		t.Error("chat must not be consulted")
	}
}

func TestRouter_ShutdownDenied(t *testing.T) {
	listener := speech.NewMockListener("wrong")
	r := newTestRouter("friday", listener, &fakeAsker{})

	reply := r.Route(context.Background(), New("shutdown"))
	if reply.Text != ReplyAccessDenied || reply.Halt {
		t.Errorf("Route() = %+v, want access denied", reply)
	}
}

func TestRouter_ShutdownGranted(t *testing.T) {
	listener := speech.NewMockListener("Friday")
	r := newTestRouter("friday", listener, &fakeAsker{})

	if reply := r.Route(context.Background(), New("please SHUTDOWN now")); !reply.Halt {
		t.Errorf("Route() = %+v, want halt", reply)
	}
}

func TestRouter_OrderedRoutes(t *testing.T) {
	asker := &fakeAsker{reply: "I am JARVIS."}
	r := newTestRouter("", speech.NewMockListener(), asker)
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"What is the temperature?", "The lab temperature is 23.5 degrees Celsius."},
		{"how humid is it, humidity please", "The lab humidity is 48.0 percent."},
		{"Who are you?", "I am JARVIS."},
		{"turn on the temperature lamp", "Device control is offline, sir."},
	}
	for _, tt := range tests {
		if got := r.Route(ctx, New(tt.text)).Text; got != tt.want {
			t.Errorf("Route(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}

	if names := r.Routes(); len(names) != 2 || names[0] != "device" {
		t.Errorf("Routes() = %v", names)
	}
}

func TestRouter_NoFallback(t *testing.T) {
	r := NewRouter(nil)
	if reply := r.Route(context.Background(), New("anything")); reply.Text == "" {
		t.Error("routing must always produce a reply")
	}
}

func TestChat_SendsHistoryAndCommand(t *testing.T) {
	history := conversation.New("You are JARVIS.")
	history.AppendExchange("hi", "hello")
	asker := &fakeAsker{reply: "Fine."}

	reply := NewChat(asker, history).Handle(context.Background(), New("How are you?"))
	if reply.Text != "Fine." {
		t.Errorf("reply = %q", reply.Text)
	}

	turns := asker.turns[0]
	if len(turns) != 4 {
		t.Fatalf("sent %d turns, want 4", len(turns))
	}
	last := turns[3]
	if last.Role != conversation.RoleUser || last.Text != "How are you?" {
		t.Errorf("last turn = %+v", last)
	}
	if history.Len() != 3 {
		t.Error("Chat must not mutate the history")
	}
}

func TestTelemetry(t *testing.T) {
	ctx := context.Background()

	gas := NewTelemetry(telemetry.NewMock(telemetry.Reading{GasAlert: true}), nil)
	if got := gas.Handle(ctx, New("any gas leaks?")).Text; !strings.Contains(got, "Hazardous gas") {
		t.Errorf("gas reply = %q", got)
	}

	down := NewTelemetry(&telemetry.Mock{ReadFunc: func(context.Context) (telemetry.Reading, error) {
		return telemetry.Reading{}, errors.New("connection refused")
	}}, nil)
	if got := down.Handle(ctx, New("temperature")).Text; got != ReplySensorsDown {
		t.Errorf("down reply = %q", got)
	}
}

type fakeAverages struct {
	temp, hum float64
	ok        bool
	err       error
}

func (f fakeAverages) AverageTemperature(context.Context) (float64, bool, error) {
	return f.temp, f.ok, f.err
}

func (f fakeAverages) AverageHumidity(context.Context) (float64, bool, error) {
	return f.hum, f.ok, f.err
}

func TestAverage(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		src  fakeAverages
		text string
		want string
	}{
		{"temperature", fakeAverages{temp: 24.26, ok: true}, "average temperature", "The average lab temperature is 24.3 degrees Celsius."},
		{"humidity", fakeAverages{hum: 51, ok: true}, "average humidity", "The average lab humidity is 51.0 percent."},
		{"empty", fakeAverages{}, "average temperature", "I have no temperature readings recorded yet, sir."},
		{"error", fakeAverages{err: errors.New("locked")}, "average humidity", "I'm unable to access the lab records, sir."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewAverage(tt.src, nil).Handle(ctx, New(tt.text)).Text; got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if !AverageMatch("what's the average temperature") || AverageMatch("what's the temperature") {
		t.Error("AverageMatch mismatch")
	}
}

type fakePublisher struct {
	calls  []string
	err    error
	status string
}

func (f *fakePublisher) PublishCommand(ctx context.Context, device, state string) error {
	f.calls = append(f.calls, device+"="+state)
	return f.err
}

func (f *fakePublisher) Status() (string, bool) {
	return f.status, f.status != ""
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		key, device, state string
		ok                 bool
	}{
		{"turn on the lights", "lights", "on", true},
		{"please switch off the kitchen fan.", "kitchen fan", "off", true},
		{"turn off heater", "heater", "off", true},
		{"turn around", "", "", false},
	}
	for _, tt := range tests {
		device, state, ok := ParseSwitch(tt.key)
		if device != tt.device || state != tt.state || ok != tt.ok {
			t.Errorf("ParseSwitch(%q) = %q, %q, %v", tt.key, device, state, ok)
		}
	}
}

func TestDevice(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{status: `{"lights":"on"}`}
	pump := &telemetry.Mock{}
	d := NewDevice(pub, nil, WithStatus(pub), WithPump(pump))

	if got := d.Handle(ctx, New("Turn on the lights")).Text; got != "Turning on the lights." {
		t.Errorf("reply = %q", got)
	}
	if len(pub.calls) != 1 || pub.calls[0] != "lights=on" {
		t.Errorf("published %v", pub.calls)
	}

	d.Handle(ctx, New("turn off the pump"))
	if calls := pump.PumpCalls(); len(calls) != 1 || calls[0] {
		t.Errorf("pump calls = %v", calls)
	}
	if len(pub.calls) != 1 {
		t.Error("pump must not go over the broker")
	}

	if got := d.Handle(ctx, New("device status")).Text; !strings.Contains(got, `{"lights":"on"}`) {
		t.Errorf("status reply = %q", got)
	}

	pub.err = fmt.Errorf("not connected")
	if got := d.Handle(ctx, New("turn off the lights")).Text; got != "I couldn't reach the lights, sir." {
		t.Errorf("failure reply = %q", got)
	}
}

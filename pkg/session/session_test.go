package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/teslashibe/go-jarvis/pkg/command"
	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/knowledge"
	"github.com/teslashibe/go-jarvis/pkg/speech"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
	"github.com/teslashibe/go-jarvis/pkg/tts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	listener *speech.MockListener
	speaker  *tts.MockSpeaker
	llm      *inference.Mock
	rec      *journal.Recorder
	conv     *conversation.Context
	ctrl     *Controller
}

func newHarness(t *testing.T, password string, heard ...string) *harness {
	t.Helper()
	h := &harness{
		listener: speech.NewMockListener(heard...),
		speaker:  tts.NewMockSpeaker(),
		llm:      inference.NewMock(),
		rec:      journal.NewRecorder(),
		conv:     conversation.New("You are JARVIS."),
	}

	kc := knowledge.New(h.llm, knowledge.WithPolicy(knowledge.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}))
	lab := telemetry.NewMock(telemetry.Reading{Temperature: 23.5, Humidity: 48})
	gate := command.NewAuthGate(password, h.speaker, h.listener)
	router := command.NewRouter(command.NewChat(kc, h.conv),
		command.WithShutdown("shutdown", command.Shutdown),
		command.WithGate(gate),
		command.WithRoute("telemetry", command.TelemetryMatch, command.NewTelemetry(lab, nil)),
	)

	h.ctrl = New(h.listener, h.speaker, router, h.conv,
		WithSink(h.rec),
		WithCaptureBackoff(0),
		WithListenTimeout(2*time.Second),
	)
	t.Cleanup(func() { h.ctrl.Stop() })
	return h
}

// expectSpoken waits for the next spoken line and compares it with want.
func (h *harness) expectSpoken(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-h.speaker.Spoken():
		if got != want {
			t.Fatalf("spoke %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "")

	if h.ctrl.State() != Idle {
		t.Fatalf("initial state = %s", h.ctrl.State())
	}
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.ctrl.State() != Listening {
		t.Errorf("state after Start = %s", h.ctrl.State())
	}
	h.expectSpoken(t, DefaultGreeting)

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state after Stop = %s", h.ctrl.State())
	}
	if h.rec.Count(journal.EventSessionStarted) != 1 || h.rec.Count(journal.EventSessionStopped) != 1 {
		t.Errorf("events = %v", h.rec.Events())
	}
}

func TestDoubleStart(t *testing.T) {
	h := newHarness(t, "")

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopWhenIdle(t *testing.T) {
	h := newHarness(t, "")
	if err := h.ctrl.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() = %v, want ErrNotRunning", err)
	}
	if len(h.rec.Events()) != 0 {
		t.Error("Stop on idle must have no side effects")
	}
}

func TestRestart(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	h.ctrl.Start(ctx)
	first := h.ctrl.SessionID()
	h.ctrl.Stop()

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if h.ctrl.SessionID() == first {
		t.Error("each run should get a new session ID")
	}
}

func TestConcurrentStop(t *testing.T) {
	h := newHarness(t, "")
	h.ctrl.Start(context.Background())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.ctrl.Stop()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrNotRunning) {
			t.Errorf("Stop() = %v", err)
		}
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if h.rec.Count(journal.EventSessionStopped) != 1 {
		t.Errorf("stopped events = %d", h.rec.Count(journal.EventSessionStopped))
	}
}

func TestChatExchangeAppendsOneTurnPair(t *testing.T) {
	h := newHarness(t, "", "Who are you?")
	h.llm.SendFunc = func(ctx context.Context, messages []inference.Message) (string, error) {
		return "I am JARVIS, sir.", nil
	}

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, "I am JARVIS, sir.")
	h.ctrl.Stop()

	turns := h.conv.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(turns))
	}
	if turns[1].Role != conversation.RoleUser || turns[1].Text != "Who are you?" {
		t.Errorf("user turn = %+v", turns[1])
	}
	if turns[2].Role != conversation.RoleAssistant || turns[2].Text != "I am JARVIS, sir." {
		t.Errorf("assistant turn = %+v", turns[2])
	}

	var order []string
	for _, e := range h.rec.Events() {
		if e == journal.EventUserTurn || e == journal.EventAssistantTurn {
			order = append(order, e)
		}
	}
	if len(order) != 2 || order[0] != journal.EventUserTurn || order[1] != journal.EventAssistantTurn {
		t.Errorf("turn events = %v", order)
	}

	// The service saw the system prompt and the new user turn.
	msgs := h.llm.LastMessages()
	if len(msgs) != 2 || msgs[0].Role != inference.RoleSystem || msgs[1].Content != "Who are you?" {
		t.Errorf("sent messages = %+v", msgs)
	}
}

func TestTemperatureQuestionEndToEnd(t *testing.T) {
	h := newHarness(t, "", "What is the temperature?")

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, "The lab temperature is 23.5 degrees Celsius.")

	// Still listening for the next command.
	waitFor(t, func() bool { return h.listener.Calls() >= 2 })
	if h.ctrl.State() != Listening {
		t.Errorf("state = %s, want listening", h.ctrl.State())
	}
	if h.llm.CallCount("Send") != 0 {
		t.Error("telemetry question must not reach the knowledge service")
	}
}

func TestShutdownHalts(t *testing.T) {
	h := newHarness(t, "", "shutdown")

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, command.ReplyShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if h.conv.Len() != 3 {
		t.Errorf("farewell exchange should be recorded, len = %d", h.conv.Len())
	}
}

func TestShutdownRequiresPassword(t *testing.T) {
	h := newHarness(t, "friday", "shutdown", "friday please", "shutdown", "FRIDAY")

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, command.ReplyAuthPrompt)
	h.expectSpoken(t, command.ReplyAccessDenied)
	h.expectSpoken(t, command.ReplyAuthPrompt)
	h.expectSpoken(t, command.ReplyShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.ctrl.Wait(ctx)

	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
}

func TestListenFailuresApologizeAndContinue(t *testing.T) {
	h := newHarness(t, "")
	h.listener.Push(
		speech.Heard{Err: &speech.CaptureError{Err: speech.ErrBlankInput}},
		speech.Heard{Err: &speech.CaptureError{Err: speech.ErrNoSpeech}},
		speech.Heard{Err: &speech.RecognitionError{Engine: "mock", Err: speech.ErrEmptyTranscript}},
		speech.Heard{Err: &speech.CaptureError{Err: errors.New("overrun")}},
		speech.Heard{Err: errors.New("boom")},
		speech.Heard{Text: "temperature"},
	)

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, ApologyNoSpeech)
	h.expectSpoken(t, ApologyUnderstanding)
	h.expectSpoken(t, ApologyMicrophone)
	h.expectSpoken(t, ApologyUnexpected)
	h.expectSpoken(t, "The lab temperature is 23.5 degrees Celsius.")

	if h.ctrl.State() != Listening {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if n := h.rec.Count(journal.EventListenFailed); n != 4 {
		t.Errorf("listen failures recorded = %d", n)
	}
}

func TestSilenceIsNotApologizedFor(t *testing.T) {
	h := newHarness(t, "")
	for i := 0; i < 5; i++ {
		h.listener.Push(speech.Heard{Err: &speech.CaptureError{Err: speech.ErrNoSpeech}})
	}
	h.listener.Push(speech.Heard{Text: "temperature"})

	h.ctrl.Start(context.Background())
	h.expectSpoken(t, DefaultGreeting)
	h.expectSpoken(t, "The lab temperature is 23.5 degrees Celsius.")

	if texts := h.speaker.Texts(); len(texts) != 2 {
		t.Errorf("spoken = %q, want greeting and reply only", texts)
	}
	if n := h.rec.Count(journal.EventListenFailed); n != 0 {
		t.Errorf("listen failures recorded = %d, want 0", n)
	}
	if h.listener.Calls() < 6 {
		t.Errorf("listener called %d times, want at least 6", h.listener.Calls())
	}
}

func TestSilentConsoleStaysQuiet(t *testing.T) {
	pr, pw := io.Pipe()
	speaker := tts.NewMockSpeaker()
	rec := journal.NewRecorder()
	conv := conversation.New("You are JARVIS.")
	listener := speech.NewListener(speech.NewConsoleCapturer(pr, nil), speech.TranscriptRecognizer{}, nil)
	router := command.NewRouter(command.NewChat(knowledge.New(inference.NewMock()), conv))

	ctrl := New(listener, speaker, router, conv,
		WithSink(rec),
		WithCaptureBackoff(0),
		WithListenTimeout(20*time.Millisecond),
	)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Several listen windows expire with nothing typed.
	time.Sleep(200 * time.Millisecond)
	ctrl.Stop()
	pw.Close()

	if texts := speaker.Texts(); len(texts) != 1 || texts[0] != DefaultGreeting {
		t.Errorf("spoken = %q, want greeting only", texts)
	}
	if n := rec.Count(journal.EventListenFailed); n != 0 {
		t.Errorf("listen failures recorded = %d, want 0", n)
	}
}

func TestFatalCaptureEndsSession(t *testing.T) {
	h := newHarness(t, "")
	h.listener.Push(speech.Heard{Err: &speech.CaptureError{Err: speech.ErrDeviceUnavailable, Fatal: true}})

	h.ctrl.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if n := h.rec.Count(journal.EventSessionFault); n != 1 {
		t.Errorf("fault events = %d, want 1", n)
	}
	if err := h.ctrl.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop after fault = %v", err)
	}
}

func TestStopDuringServiceCall(t *testing.T) {
	h := newHarness(t, "", "tell me a story")
	called := make(chan struct{})
	h.llm.SendFunc = func(ctx context.Context, messages []inference.Message) (string, error) {
		close(called)
		<-ctx.Done()
		return "", ctx.Err()
	}

	h.ctrl.Start(context.Background())
	<-called

	stopped := make(chan struct{})
	go func() {
		h.ctrl.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the service call was in flight")
	}
	if h.conv.Len() != 1 {
		t.Errorf("cancelled exchange must not be recorded, len = %d", h.conv.Len())
	}
}

func TestParentContextCancel(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	h.ctrl.Start(ctx)
	cancel()

	waitFor(t, func() bool { return h.ctrl.State() == Idle })
}

func TestAsk(t *testing.T) {
	llm := inference.NewMock()
	kc := knowledge.New(llm)

	if got := Ask(context.Background(), kc, "You are JARVIS.", "Hello?"); got != "Mock response" {
		t.Errorf("Ask() = %q", got)
	}
	Ask(context.Background(), kc, "You are JARVIS.", "Again?")

	if msgs := llm.LastMessages(); len(msgs) != 2 {
		t.Errorf("Ask must not carry history, sent %d messages", len(msgs))
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Listening: "listening", Stopping: "stopping", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}

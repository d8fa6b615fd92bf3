package recording

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/recorder"
)

// fakeClock only moves when told to.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &fakeTicker{c: make(chan time.Time)}
	return c.ticker
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// tick delivers one tick; it returns once the coordinator has taken it.
func (c *fakeClock) tick(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	tk, now := c.ticker, c.now
	c.mu.Unlock()
	if tk == nil {
		t.Fatal("no ticker")
	}
	select {
	case tk.c <- now:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not take tick")
	}
}

// fakeStream is a capture process backed by a pipe.
type fakeStream struct {
	pr              *io.PipeReader
	pw              *io.PipeWriter
	ignoreInterrupt bool
	interrupts      atomic.Int32
	kills           atomic.Int32
}

func newFakeStream() *fakeStream {
	pr, pw := io.Pipe()
	return &fakeStream{pr: pr, pw: pw}
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.pr.Read(p) }
func (s *fakeStream) Interrupt() error {
	s.interrupts.Add(1)
	if !s.ignoreInterrupt {
		s.pw.Close()
	}
	return nil
}
func (s *fakeStream) Kill() error {
	s.kills.Add(1)
	s.pw.Close()
	return nil
}
func (s *fakeStream) Wait() error { return nil }

type fakeLauncher struct {
	mu              sync.Mutex
	streams         []*fakeStream
	err             error
	ignoreInterrupt bool
}

func (l *fakeLauncher) Launch(ctx context.Context) (recorder.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	s := newFakeStream()
	s.ignoreInterrupt = l.ignoreInterrupt
	l.streams = append(l.streams, s)
	return s, nil
}

func (l *fakeLauncher) last() *fakeStream {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streams[len(l.streams)-1]
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.streams)
}

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctrl     *Controller
	launcher *fakeLauncher
	clock    *fakeClock
	events   <-chan events.Event
	dir      string
}

func newHarness(t *testing.T, mutate ...func(*Config, *fakeLauncher)) *harness {
	t.Helper()
	bus := events.NewBus(nil)
	ch, unsub := bus.Subscribe(8192)

	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.StopTimeout = 200 * time.Millisecond
	l := &fakeLauncher{}
	for _, m := range mutate {
		m(&cfg, l)
	}
	clk := &fakeClock{now: t0}

	ctrl := NewController(cfg, l, bus, WithClock(clk))
	t.Cleanup(func() {
		ctrl.Shutdown()
		unsub()
	})
	return &harness{ctrl: ctrl, launcher: l, clock: clk, events: ch, dir: dir}
}

// next returns the next event of the given kind, collecting everything seen
// on the way.
func (h *harness) next(t *testing.T, kind events.Kind) (events.Event, []events.Event) {
	t.Helper()
	var seen []events.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			seen = append(seen, ev)
			if ev.Kind == kind {
				return ev, seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s (seen %d events)", kind, len(seen))
		}
	}
}

// tickAt moves the clock to offset and returns all events emitted by that tick.
func (h *harness) tickAt(t *testing.T, offset time.Duration) []events.Event {
	t.Helper()
	h.clock.set(t0.Add(offset))
	h.clock.tick(t)
	_, seen := h.next(t, events.KindStatusChanged)
	return seen
}

func warnings(evs []events.Event) []models.TimeWarning {
	var out []models.TimeWarning
	for _, ev := range evs {
		if ev.Kind == events.KindTimeWarning {
			out = append(out, ev.Payload.(models.TimeWarning))
		}
	}
	return out
}

func TestController_StartTwice(t *testing.T) {
	h := newHarness(t)

	started, err := h.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.FileName != "recording_20240101_090000.wav" {
		t.Errorf("unexpected file name %s", started.FileName)
	}
	h.next(t, events.KindRecordingStarted)

	_, err = h.ctrl.Start(context.Background())
	if !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if h.launcher.count() != 1 {
		t.Errorf("expected one capture process, got %d", h.launcher.count())
	}

	entries, _ := os.ReadDir(h.dir)
	if len(entries) != 1 {
		t.Errorf("expected only the first session's file, got %d entries", len(entries))
	}

	st := h.ctrl.Status()
	if !st.IsRecording || st.FileName != started.FileName {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestController_StopIdle(t *testing.T) {
	h := newHarness(t)

	if _, err := h.ctrl.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if st := h.ctrl.Status(); st != (models.RecordingStatus{}) {
		t.Errorf("expected zero status, got %+v", st)
	}
	select {
	case ev := <-h.events:
		t.Errorf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestController_StopTwice(t *testing.T) {
	h := newHarness(t)

	started, err := h.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pcm := make([]byte, 3200)
	if _, err := h.launcher.last().pw.Write(pcm); err != nil {
		t.Fatalf("write pcm: %v", err)
	}

	h.clock.set(t0.Add(5*time.Second + 400*time.Millisecond))
	stopped, err := h.ctrl.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if stopped.FilePath != started.FilePath {
		t.Errorf("expected path %s, got %s", started.FilePath, stopped.FilePath)
	}
	if stopped.DurationSeconds != 5 {
		t.Errorf("expected 5s duration, got %d", stopped.DurationSeconds)
	}
	if h.launcher.last().interrupts.Load() != 1 {
		t.Error("expected capture process to be interrupted")
	}

	info, err := recorder.ReadWAVInfo(stopped.FilePath)
	if err != nil {
		t.Fatalf("ReadWAVInfo: %v", err)
	}
	if info.DataBytes != 3200 {
		t.Errorf("expected 3200 data bytes, got %d", info.DataBytes)
	}

	ev, _ := h.next(t, events.KindRecordingStopped)
	if ev.Payload.(models.RecordingStopped).DurationSeconds != 5 {
		t.Errorf("unexpected stopped payload %+v", ev.Payload)
	}

	if _, err := h.ctrl.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second Stop: expected ErrNotRecording, got %v", err)
	}
	if h.ctrl.Status().IsRecording {
		t.Error("expected idle status after stop")
	}
}

func TestController_StopKillsUnresponsiveProcess(t *testing.T) {
	h := newHarness(t, func(c *Config, l *fakeLauncher) {
		c.StopTimeout = 50 * time.Millisecond
		l.ignoreInterrupt = true
	})

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.launcher.last().kills.Load() == 0 {
		t.Error("expected capture process to be killed")
	}
}

func TestController_TimeWarnings(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tests := []struct {
		second int
		want   models.WarningLevel
	}{
		{4198, ""},
		{4199, ""},
		{4200, models.WarningLevelWarning},
		{4201, ""},
		{5399, ""},
		{5400, models.WarningLevelCritical},
		{5401, ""},
	}

	total := 0
	for _, tt := range tests {
		seen := h.tickAt(t, time.Duration(tt.second)*time.Second)
		ws := warnings(seen)
		total += len(ws)

		if tt.want == "" {
			if len(ws) != 0 {
				t.Errorf("second %d: expected no warning, got %+v", tt.second, ws)
			}
			continue
		}
		if len(ws) != 1 {
			t.Fatalf("second %d: expected exactly one warning, got %d", tt.second, len(ws))
		}
		if ws[0].Level != tt.want || ws[0].ElapsedSeconds != tt.second {
			t.Errorf("second %d: unexpected warning %+v", tt.second, ws[0])
		}
		if ws[0].Message == "" {
			t.Errorf("second %d: expected a message", tt.second)
		}
	}
	if total != 2 {
		t.Errorf("expected 2 warnings in total, got %d", total)
	}

	// same second again does not re-emit
	if ws := warnings(h.tickAt(t, 5401*time.Second)); len(ws) != 0 {
		t.Errorf("expected no re-emission, got %+v", ws)
	}
}

func TestController_WarningAfterSuspension(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.tickAt(t, 10*time.Second)

	// host slept past both thresholds
	seen := h.tickAt(t, 5500*time.Second)
	ws := warnings(seen)
	if len(ws) != 2 {
		t.Fatalf("expected both warnings to fire once, got %d", len(ws))
	}
	if ws[0].ElapsedSeconds != 4200 || ws[0].Level != models.WarningLevelWarning {
		t.Errorf("unexpected first warning %+v", ws[0])
	}
	if ws[1].ElapsedSeconds != 5400 || ws[1].Level != models.WarningLevelCritical {
		t.Errorf("unexpected second warning %+v", ws[1])
	}

	status := seen[len(seen)-1].Payload.(models.RecordingStatus)
	if status.ElapsedSeconds != 5500 {
		t.Errorf("expected status at 5500s, got %d", status.ElapsedSeconds)
	}

	if ws := warnings(h.tickAt(t, 5501*time.Second)); len(ws) != 0 {
		t.Errorf("expected no further warnings, got %+v", ws)
	}
}

func TestController_PauseResume(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.tickAt(t, 4100*time.Second)

	h.ctrl.PauseStatusUpdates()
	h.clock.set(t0.Add(4250 * time.Second))
	h.clock.tick(t)

	if !h.ctrl.Status().IsRecording {
		t.Error("pausing updates must not alter recording state")
	}

	h.ctrl.ResumeStatusUpdates()
	seen := h.tickAt(t, 4260*time.Second)

	for _, ev := range seen {
		if ev.Kind == events.KindStatusChanged && ev.Payload.(models.RecordingStatus).ElapsedSeconds != 4260 {
			t.Errorf("unexpected status emitted while paused: %+v", ev.Payload)
		}
	}
	ws := warnings(seen)
	if len(ws) != 1 || ws[0].ElapsedSeconds != 4200 {
		t.Errorf("expected the deferred warning once, got %+v", ws)
	}
}

func TestController_StreamError(t *testing.T) {
	h := newHarness(t)
	started, err := h.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.launcher.last().pw.CloseWithError(errors.New("device unplugged"))

	ev, _ := h.next(t, events.KindRecordingError)
	payload := ev.Payload.(models.RecordingError)
	if payload.FilePath != started.FilePath {
		t.Errorf("expected error for %s, got %s", started.FilePath, payload.FilePath)
	}
	if payload.Message == "" {
		t.Error("expected error message")
	}

	if _, err := h.ctrl.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording after stream error, got %v", err)
	}
	if h.ctrl.Status().IsRecording {
		t.Error("expected session to be terminated")
	}

	// a new session can be started explicitly
	h.clock.set(t0.Add(time.Minute))
	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestController_UnexpectedExit(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.launcher.last().pw.Close()

	ev, _ := h.next(t, events.KindRecordingError)
	if ev.Payload.(models.RecordingError).Message == "" {
		t.Error("expected error message")
	}
	if h.ctrl.Status().IsRecording {
		t.Error("expected session to be terminated")
	}
}

func TestController_LaunchFailure(t *testing.T) {
	h := newHarness(t, func(c *Config, l *fakeLauncher) {
		l.err = recorder.ErrBackendUnavailable
	})

	_, err := h.ctrl.Start(context.Background())
	if !errors.Is(err, recorder.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	h.next(t, events.KindRecordingError)

	entries, _ := os.ReadDir(h.dir)
	if len(entries) != 0 {
		t.Errorf("expected no leftover files, got %d", len(entries))
	}
	if h.ctrl.Status().IsRecording {
		t.Error("expected idle status")
	}
}

func TestController_Shutdown(t *testing.T) {
	h := newHarness(t)
	started, err := h.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.ctrl.Shutdown()
	h.ctrl.Shutdown()

	ev, _ := h.next(t, events.KindRecordingStopped)
	if ev.Payload.(models.RecordingStopped).FilePath != started.FilePath {
		t.Errorf("unexpected stopped payload %+v", ev.Payload)
	}
	if _, err := recorder.ReadWAVInfo(started.FilePath); err != nil {
		t.Errorf("expected finalized file: %v", err)
	}

	if _, err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("expected ErrControllerClosed, got %v", err)
	}
	if _, err := h.ctrl.Stop(); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("expected ErrControllerClosed, got %v", err)
	}
	h.ctrl.PauseStatusUpdates()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateRecording, "RECORDING"},
		{StateStopping, "STOPPING"},
		{StateStopped, "STOPPED"},
		{State(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
	"github.com/2re1million/ekko/internal/observability/metrics"
	"github.com/2re1million/ekko/internal/service/recorder"
)

// Publisher receives controller events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

// Config holds controller settings.
type Config struct {
	RecordingsDir  string
	SampleRateHz   int
	StatusInterval time.Duration
	WarningAfter   time.Duration
	CriticalAfter  time.Duration
	StopTimeout    time.Duration
}

// DefaultConfig returns a config with the standard thresholds.
func DefaultConfig(dir string) Config {
	return Config{
		RecordingsDir:  dir,
		SampleRateHz:   16000,
		StatusInterval: time.Second,
		WarningAfter:   70 * time.Minute,
		CriticalAfter:  90 * time.Minute,
		StopTimeout:    3 * time.Second,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the system clock.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithMetrics replaces the default metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdShutdown
)

type command struct {
	kind  cmdKind
	ctx   context.Context
	reply chan result
}

type result struct {
	started models.RecordingStarted
	stopped models.RecordingStopped
	err     error
}

// session is owned by the coordinator goroutine.
type session struct {
	state       State
	writer      *recorder.WAVWriter
	stream      recorder.Stream
	meter       *recorder.LevelMeter
	startedAt   time.Time
	lastChecked int
	streamDone  chan error
	log         zerolog.Logger
}

// snapshot is what Status reads. Guarded by Controller.mu.
type snapshot struct {
	recording bool
	startedAt time.Time
	fileName  string
	meter     *recorder.LevelMeter
}

// Controller manages one audio capture session at a time. All session
// mutations happen on a single coordinator goroutine; Status reads a
// snapshot and never waits on it.
type Controller struct {
	cfg      Config
	launcher recorder.Launcher
	pub      Publisher
	clock    Clock
	metrics  *metrics.Metrics
	log      zerolog.Logger

	cmds         chan command
	done         chan struct{}
	shutdownOnce sync.Once

	// coordinator-only state
	sess   *session
	ticker Ticker
	paused bool

	mu   sync.RWMutex
	snap snapshot
}

// NewController creates a controller and starts its coordinator.
func NewController(cfg Config, launcher recorder.Launcher, pub Publisher, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		launcher: launcher,
		pub:      pub,
		clock:    SystemClock{},
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("recording"),
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.StatusInterval <= 0 {
		c.cfg.StatusInterval = time.Second
	}
	if c.cfg.StopTimeout <= 0 {
		c.cfg.StopTimeout = 3 * time.Second
	}
	go c.run()
	return c
}

// Start begins a new session.
func (c *Controller) Start(ctx context.Context) (models.RecordingStarted, error) {
	r := c.send(ctx, cmdStart)
	return r.started, r.err
}

// Stop ends the active session and returns the finished file.
func (c *Controller) Stop() (models.RecordingStopped, error) {
	r := c.send(context.Background(), cmdStop)
	return r.stopped, r.err
}

// PauseStatusUpdates suspends periodic emission without touching the session.
func (c *Controller) PauseStatusUpdates() {
	c.send(context.Background(), cmdPause)
}

// ResumeStatusUpdates re-enables periodic emission.
func (c *Controller) ResumeStatusUpdates() {
	c.send(context.Background(), cmdResume)
}

// Shutdown stops any active session and exits the coordinator. Safe to call
// more than once.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.send(context.Background(), cmdShutdown)
	})
	<-c.done
}

// Status returns a fresh snapshot. A zero value means idle.
func (c *Controller) Status() models.RecordingStatus {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()

	if !s.recording {
		return models.RecordingStatus{}
	}
	return models.RecordingStatus{
		IsRecording:    true,
		ElapsedSeconds: elapsedSeconds(c.clock.Now(), s.startedAt),
		AudioLevel:     s.meter.Level(),
		FileName:       s.fileName,
	}
}

func (c *Controller) send(ctx context.Context, kind cmdKind) result {
	cmd := command{kind: kind, ctx: ctx, reply: make(chan result, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return result{err: ErrControllerClosed}
	}
	return <-cmd.reply
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.C()
		}
		var streamDone <-chan error
		if c.sess != nil {
			streamDone = c.sess.streamDone
		}

		select {
		case cmd := <-c.cmds:
			if c.handle(cmd) {
				return
			}
		case <-tick:
			c.tick()
		case err := <-streamDone:
			c.streamEnded(err)
		}
	}
}

// handle executes one command and reports whether the coordinator should exit.
func (c *Controller) handle(cmd command) bool {
	var r result
	exit := false

	switch cmd.kind {
	case cmdStart:
		r.started, r.err = c.start(cmd.ctx)
	case cmdStop:
		r.stopped, r.err = c.stop()
	case cmdPause:
		c.paused = true
		c.log.Debug().Msg("Status updates paused")
	case cmdResume:
		c.paused = false
		c.log.Debug().Msg("Status updates resumed")
	case cmdShutdown:
		if c.sess != nil {
			if _, err := c.stop(); err != nil {
				c.log.Warn().Err(err).Msg("Stop during shutdown failed")
			}
		}
		c.stopTicker()
		c.log.Info().Msg("Recording controller shut down")
		exit = true
	}

	cmd.reply <- r
	return exit
}

func (c *Controller) start(ctx context.Context) (models.RecordingStarted, error) {
	if c.sess != nil {
		return models.RecordingStarted{}, ErrAlreadyRecording
	}

	now := c.clock.Now()
	writer, err := recorder.CreateRecording(c.cfg.RecordingsDir, now, c.cfg.SampleRateHz)
	if err != nil {
		err = fmt.Errorf("recording: create output file: %w", err)
		c.failStart("", err)
		return models.RecordingStarted{}, err
	}

	stream, err := c.launcher.Launch(ctx)
	if err != nil {
		writer.Close()
		os.Remove(writer.Path())
		c.failStart(writer.Path(), err)
		return models.RecordingStarted{}, err
	}

	meter := recorder.NewLevelMeter(stream)
	sess := &session{
		state:      StateRecording,
		writer:     writer,
		stream:     stream,
		meter:      meter,
		startedAt:  now,
		streamDone: make(chan error, 1),
		log:        logging.WithSession(writer.Name()),
	}
	go c.pump(sess)

	c.sess = sess
	c.paused = false
	c.ticker = c.clock.NewTicker(c.cfg.StatusInterval)

	c.mu.Lock()
	c.snap = snapshot{recording: true, startedAt: now, fileName: writer.Name(), meter: meter}
	c.mu.Unlock()

	c.metrics.RecordRecordingStart()
	sess.log.Info().Str("path", writer.Path()).Msg("Recording started")

	started := models.RecordingStarted{FileName: writer.Name(), FilePath: writer.Path()}
	c.publish(events.KindRecordingStarted, writer.Name(), started)
	return started, nil
}

func (c *Controller) failStart(path string, err error) {
	c.log.Error().Err(err).Msg("Recording failed to start")
	c.metrics.RecordingsFailed.WithLabelValues(failureReason(err)).Inc()
	c.publish(events.KindRecordingError, path, models.RecordingError{FilePath: path, Message: err.Error()})
}

// pump copies PCM to disk until the stream ends, then reports once.
func (c *Controller) pump(sess *session) {
	buf := make([]byte, 32*1024)
	var copyErr error
	for {
		n, err := sess.meter.Read(buf)
		if n > 0 {
			if _, werr := sess.writer.Write(buf[:n]); werr != nil {
				copyErr = fmt.Errorf("recording: write audio: %w", werr)
				sess.stream.Kill()
				io.Copy(io.Discard, sess.stream)
				break
			}
			c.metrics.RecordAudioWritten(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			copyErr = fmt.Errorf("recording: read audio: %w", err)
			sess.stream.Kill()
			break
		}
	}

	waitErr := sess.stream.Wait()
	if copyErr != nil {
		sess.streamDone <- copyErr
		return
	}
	sess.streamDone <- waitErr
}

func (c *Controller) stop() (models.RecordingStopped, error) {
	sess := c.sess
	if sess == nil {
		return models.RecordingStopped{}, ErrNotRecording
	}
	sess.state = StateStopping
	c.stopTicker()

	if err := sess.stream.Interrupt(); err != nil {
		sess.log.Warn().Err(err).Msg("Interrupt failed")
	}
	if !c.awaitStream(sess) {
		sess.log.Warn().Dur("timeout", c.cfg.StopTimeout).Msg("Capture process did not exit, killing")
		sess.stream.Kill()
		c.awaitStream(sess)
	}

	duration := elapsedSeconds(c.clock.Now(), sess.startedAt)
	closeErr := sess.writer.Close()
	c.finish(sess)

	if closeErr != nil {
		err := fmt.Errorf("recording: finalize %s: %w", sess.writer.Name(), closeErr)
		c.metrics.RecordRecordingEnd("io", float64(duration))
		c.publish(events.KindRecordingError, sess.writer.Name(),
			models.RecordingError{FilePath: sess.writer.Path(), Message: err.Error()})
		return models.RecordingStopped{}, err
	}

	c.metrics.RecordRecordingEnd("", float64(duration))
	sess.log.Info().Int("durationSeconds", duration).Msg("Recording stopped")

	stopped := models.RecordingStopped{FilePath: sess.writer.Path(), DurationSeconds: duration}
	c.publish(events.KindRecordingStopped, sess.writer.Name(), stopped)
	return stopped, nil
}

// awaitStream waits up to StopTimeout for the pump to finish.
func (c *Controller) awaitStream(sess *session) bool {
	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case err := <-sess.streamDone:
		if err != nil {
			sess.log.Debug().Err(err).Msg("Capture stream ended with error during stop")
		}
		return true
	case <-timer.C:
		return false
	}
}

// streamEnded handles the capture process exiting on its own. This is
// always a failure: the session is torn down and an error event emitted.
func (c *Controller) streamEnded(err error) {
	sess := c.sess
	if err == nil {
		err = errors.New("recording: capture process exited unexpectedly")
	}
	c.stopTicker()

	duration := elapsedSeconds(c.clock.Now(), sess.startedAt)
	if cerr := sess.writer.Close(); cerr != nil {
		sess.log.Warn().Err(cerr).Msg("Failed to finalize output after stream error")
	}
	c.finish(sess)

	sess.log.Error().Err(err).Int("elapsedSeconds", duration).Msg("Recording terminated by stream error")
	c.metrics.RecordRecordingEnd("stream", float64(duration))
	c.publish(events.KindRecordingError, sess.writer.Name(),
		models.RecordingError{FilePath: sess.writer.Path(), Message: err.Error()})
}

func (c *Controller) finish(sess *session) {
	sess.state = StateStopped
	c.sess = nil
	c.mu.Lock()
	c.snap = snapshot{}
	c.mu.Unlock()
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// tick visits every whole second since the last tick so that a threshold
// is matched exactly once even if ticks arrive late or were paused.
func (c *Controller) tick() {
	sess := c.sess
	if sess == nil || sess.state != StateRecording || c.paused {
		return
	}

	elapsed := elapsedSeconds(c.clock.Now(), sess.startedAt)
	warnAt := int(c.cfg.WarningAfter / time.Second)
	critAt := int(c.cfg.CriticalAfter / time.Second)

	for s := sess.lastChecked + 1; s <= elapsed; s++ {
		switch s {
		case warnAt:
			c.warn(sess, models.WarningLevelWarning, s)
		case critAt:
			c.warn(sess, models.WarningLevelCritical, s)
		}
	}
	if elapsed > sess.lastChecked {
		sess.lastChecked = elapsed
	}

	c.publish(events.KindStatusChanged, sess.writer.Name(), models.RecordingStatus{
		IsRecording:    true,
		ElapsedSeconds: elapsed,
		AudioLevel:     sess.meter.Level(),
		FileName:       sess.writer.Name(),
	})
}

func (c *Controller) warn(sess *session, level models.WarningLevel, second int) {
	minutes := second / 60
	msg := fmt.Sprintf("Recording has been running for %d minutes.", minutes)
	if level == models.WarningLevelCritical {
		msg = fmt.Sprintf("Recording has been running for %d minutes. Consider stopping soon.", minutes)
	}

	sess.log.Warn().Str("level", string(level)).Int("elapsedSeconds", second).Msg("Recording duration warning")
	c.metrics.RecordTimeWarning(string(level))
	c.publish(events.KindTimeWarning, sess.writer.Name(), models.TimeWarning{
		Level:          level,
		ElapsedSeconds: second,
		Message:        msg,
	})
}

func (c *Controller) publish(kind events.Kind, key string, payload any) {
	if c.pub == nil {
		return
	}
	c.pub.Publish(events.New(kind, key, payload))
}

func failureReason(err error) string {
	if errors.Is(err, recorder.ErrBackendUnavailable) {
		return "backend_unavailable"
	}
	return "spawn"
}

package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/2re1million/ekko/internal/observability/logging"
)

// Stream is a running capture process. Reading yields raw PCM until the
// process exits.
type Stream interface {
	io.Reader
	// Interrupt asks the process to finish gracefully.
	Interrupt() error
	// Kill terminates the process immediately.
	Kill() error
	// Wait releases process resources. Call it after reading hits EOF.
	Wait() error
}

// Launcher starts capture processes.
type Launcher interface {
	Launch(ctx context.Context) (Stream, error)
}

// ExecLauncher launches a discovered Backend with os/exec.
type ExecLauncher struct {
	Preferred    string
	SampleRateHz int
	LookPath     LookPathFunc
}

// NewExecLauncher creates a launcher for the given backend preference.
func NewExecLauncher(preferred string, sampleRateHz int) *ExecLauncher {
	return &ExecLauncher{Preferred: preferred, SampleRateHz: sampleRateHz}
}

// Launch discovers a backend and starts it. Discovery runs on every call so
// a backend installed while the service is up is picked up.
func (l *ExecLauncher) Launch(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	backend, err := Discover(l.Preferred, l.LookPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(backend.Binary, backend.Args(l.SampleRateHz)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder: stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recorder: start %s: %w", backend.Name, err)
	}

	log := logging.WithComponent("recorder")
	log.Info().
		Str("backend", backend.Name).
		Int("pid", cmd.Process.Pid).
		Int("sampleRateHz", l.SampleRateHz).
		Msg("Capture process started")

	return &execStream{cmd: cmd, stdout: stdout, stderr: stderr, backend: backend.Name}, nil
}

type execStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *tailBuffer
	backend string

	mu          sync.Mutex
	interrupted bool
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *execStream) Interrupt() error {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()

	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		// Platforms without SIGINT delivery fall through to a hard kill.
		return s.cmd.Process.Kill()
	}
	return nil
}

func (s *execStream) Kill() error {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
	return s.cmd.Process.Kill()
}

func (s *execStream) Wait() error {
	err := s.cmd.Wait()
	if err == nil {
		return nil
	}

	s.mu.Lock()
	interrupted := s.interrupted
	s.mu.Unlock()
	if interrupted {
		// exit status after our own signal is expected
		return nil
	}

	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return fmt.Errorf("recorder: %s exited: %w: %s", s.backend, err, msg)
	}
	return fmt.Errorf("recorder: %s exited: %w", s.backend, err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
	"github.com/2re1million/ekko/internal/observability/metrics"
)

// Transcriber is the transcription collaborator. stt.Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (models.Transcription, error)
}

// Analyzer is the analysis collaborator. analysis.Client satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, meta models.AnalysisMetadata) (models.AnalysisResult, error)
}

// Store is the persistence collaborator.
type Store interface {
	Save(ctx context.Context, draft models.MeetingDraft) (models.PersistedMeeting, error)
}

// Deleter removes source audio after a successful run.
type Deleter interface {
	DeleteAudioAndExemplars(path string) error
}

// Publisher receives run events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

// Deps are the collaborators shared by every run. They must be safe for
// concurrent use.
type Deps struct {
	Transcriber Transcriber
	Analyzer    Analyzer
	Store       Store
	Deleter     Deleter
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Request starts a run.
type Request struct {
	AudioPath                string    `json:"audioPath"`
	DeleteSourceOnCompletion bool      `json:"deleteSource"`
	RecordedAt               time.Time `json:"recordedAt,omitempty"`
	// DurationSeconds overrides the duration reported by transcription.
	DurationSeconds int `json:"durationSeconds,omitempty"`
}

// Pipeline owns all runs. Runs for different audio files proceed
// independently; only one unfinished run per file is allowed.
type Pipeline struct {
	deps Deps
	log  zerolog.Logger

	mu     sync.Mutex
	runs   map[string]*Run
	active map[string]string // audio path -> run ID
	wg     sync.WaitGroup
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		deps:   deps,
		log:    logging.WithComponent("pipeline"),
		runs:   make(map[string]*Run),
		active: make(map[string]string),
	}
}

// Start launches a new run. The run does not inherit ctx cancellation;
// use Run.Cancel.
func (p *Pipeline) Start(ctx context.Context, req Request) (*Run, error) {
	if req.AudioPath == "" {
		return nil, ErrNoAudioPath
	}

	p.mu.Lock()
	if id, ok := p.active[req.AudioPath]; ok {
		p.mu.Unlock()
		p.log.Warn().Str("audioPath", req.AudioPath).Str("activeRunId", id).Msg("Run already active for audio")
		return nil, ErrRunActive
	}
	r := newRun(context.WithoutCancel(ctx), uuid.New().String(), req, p)
	p.runs[r.id] = r
	p.active[req.AudioPath] = r.id
	p.wg.Add(1)
	p.mu.Unlock()

	p.deps.Metrics.RecordRunStart()
	r.log.Info().Bool("deleteSource", req.DeleteSourceOnCompletion).Msg("Run started")

	go func() {
		defer p.wg.Done()
		r.execute()
	}()
	return r, nil
}

// Get returns a run by ID.
func (p *Pipeline) Get(id string) (*Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r, nil
}

// List returns snapshots of all known runs, newest first.
func (p *Pipeline) List() []Snapshot {
	p.mu.Lock()
	runs := make([]*Run, 0, len(p.runs))
	for _, r := range p.runs {
		runs = append(runs, r)
	}
	p.mu.Unlock()

	out := make([]Snapshot, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Active returns the number of unfinished runs.
func (p *Pipeline) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close cancels every run that can still be canceled and waits for all
// runs to finish or ctx to expire.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	var pending []*Run
	for _, id := range p.active {
		pending = append(pending, p.runs[id])
	}
	p.mu.Unlock()

	for _, r := range pending {
		if err := r.Cancel(); err != nil {
			r.log.Info().Err(err).Msg("Run left to finish during shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) release(r *Run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[r.req.AudioPath] == r.id {
		delete(p.active, r.req.AudioPath)
	}
}

func (p *Pipeline) publish(kind events.Kind, key string, payload any) {
	if p.deps.Publisher == nil {
		return
	}
	p.deps.Publisher.Publish(events.New(kind, key, payload))
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
	"github.com/2re1million/ekko/internal/service/diarization"
)

// Snapshot is an immutable copy of a run's state.
type Snapshot struct {
	ID                       string                   `json:"id"`
	Stage                    Stage                    `json:"stage"`
	AudioPath                string                   `json:"audioPath"`
	DeleteSourceOnCompletion bool                     `json:"deleteSource"`
	Transcript               string                   `json:"transcript,omitempty"`
	Speakers                 []models.Speaker         `json:"speakers"`
	Analysis                 *models.AnalysisResult   `json:"analysis,omitempty"`
	Meeting                  *models.PersistedMeeting `json:"meeting,omitempty"`
	Failure                  *Failure                 `json:"failure,omitempty"`
	StartedAt                time.Time                `json:"startedAt"`
	UpdatedAt                time.Time                `json:"updatedAt"`
}

// Run is one pass of an audio file through the pipeline. Stages execute
// sequentially on the run's own goroutine; the exported methods may be
// called from any goroutine.
type Run struct {
	id  string
	req Request
	p   *Pipeline
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	names  chan []string // nil slice means skip
	done   chan struct{}

	mu              sync.Mutex
	stage           Stage
	stageStarted    time.Time
	transcript      string
	durationSeconds int
	speakers        []models.Speaker
	analysis        *models.AnalysisResult
	meeting         *models.PersistedMeeting
	failure         *Failure
	canceled        bool
	namingDecided   bool
	startedAt       time.Time
	updatedAt       time.Time
}

func newRun(parent context.Context, id string, req Request, p *Pipeline) *Run {
	ctx, cancel := context.WithCancel(parent)
	now := p.deps.Now()
	return &Run{
		id:           id,
		req:          req,
		p:            p,
		log:          logging.WithRun(id, req.AudioPath),
		ctx:          ctx,
		cancel:       cancel,
		names:        make(chan []string, 1),
		done:         make(chan struct{}),
		stage:        StageTranscribing,
		stageStarted: now,
		startedAt:    now,
		updatedAt:    now,
	}
}

// ID returns the run ID.
func (r *Run) ID() string { return r.id }

// Done is closed when the run reaches a terminal stage.
func (r *Run) Done() <-chan struct{} { return r.done }

// Stage returns the current stage.
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Snapshot returns a copy of the current state.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-r.done:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

func (r *Run) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:                       r.id,
		Stage:                    r.stage,
		AudioPath:                r.req.AudioPath,
		DeleteSourceOnCompletion: r.req.DeleteSourceOnCompletion,
		Transcript:               r.transcript,
		Speakers:                 append([]models.Speaker{}, r.speakers...),
		StartedAt:                r.startedAt,
		UpdatedAt:                r.updatedAt,
	}
	if r.analysis != nil {
		a := *r.analysis
		s.Analysis = &a
	}
	if r.meeting != nil {
		m := *r.meeting
		s.Meeting = &m
	}
	if r.failure != nil {
		f := *r.failure
		s.Failure = &f
	}
	return s
}

// SubmitSpeakerNames names the speakers positionally. Invalid names leave
// the run waiting for another attempt.
func (r *Run) SubmitSpeakerNames(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage != StageAwaitingSpeakerNames || r.namingDecided {
		return ErrNotAwaitingNames
	}
	if r.canceled {
		return ErrCanceled
	}
	cleaned, err := validateNames(names, len(r.speakers))
	if err != nil {
		r.log.Info().Err(err).Msg("Speaker names rejected")
		return err
	}
	r.namingDecided = true
	r.names <- cleaned
	return nil
}

// SkipSpeakerNaming keeps the generic positional names.
func (r *Run) SkipSpeakerNaming() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage != StageAwaitingSpeakerNames || r.namingDecided {
		return ErrNotAwaitingNames
	}
	if r.canceled {
		return ErrCanceled
	}
	r.namingDecided = true
	r.names <- nil
	return nil
}

// Cancel stops the run at the next stage boundary. It is refused once
// persistence has started and has no effect on a finished run.
func (r *Run) Cancel() error {
	r.mu.Lock()
	switch {
	case r.stage.IsTerminal():
		r.mu.Unlock()
		return nil
	case r.stage == StagePersisting:
		r.mu.Unlock()
		return ErrCancelNotAllowed
	}
	first := !r.canceled
	r.canceled = true
	r.mu.Unlock()

	if first {
		r.log.Info().Msg("Cancellation requested")
	}
	r.cancel()
	return nil
}

func (r *Run) isCanceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled
}

// execute drives the run to a terminal stage.
func (r *Run) execute() {
	defer close(r.done)
	defer r.cancel()

	r.p.publish(events.KindStageChanged, r.id, r.Snapshot())

	if r.isCanceled() {
		r.fail(StageTranscribing, ErrCanceled)
		return
	}

	// TRANSCRIBING
	start := time.Now()
	res, err := r.p.deps.Transcriber.Transcribe(r.ctx, r.req.AudioPath)
	r.p.deps.Metrics.RecordCall("transcription", err, time.Since(start).Seconds())
	if err != nil {
		r.failAfterCall(StageTranscribing, err)
		return
	}

	speakers := append([]models.Speaker{}, res.Speakers...)
	for i := range speakers {
		if speakers[i].DisplayName == "" {
			speakers[i].DisplayName = diarization.GenericName(i)
		}
	}
	duration := res.DurationSeconds
	if r.req.DurationSeconds > 0 {
		duration = r.req.DurationSeconds
	}
	r.log.Info().
		Int("words", wordCount(res.Transcript)).
		Int("speakers", len(speakers)).
		Int("durationSeconds", duration).
		Msg("Transcription complete")

	update := func() {
		r.transcript = res.Transcript
		r.speakers = speakers
		r.durationSeconds = duration
	}

	// AWAITING_SPEAKER_NAMES, only when there is more than one voice to tell apart
	if len(speakers) >= 2 {
		if err := r.transition(StageAwaitingSpeakerNames, update); err != nil {
			r.fail(StageTranscribing, err)
			return
		}
		var names []string
		select {
		case names = <-r.names:
		case <-r.ctx.Done():
			r.fail(StageAwaitingSpeakerNames, ErrCanceled)
			return
		}
		update = func() { r.applyNames(names) }
	}

	// ANALYZING
	if r.isCanceled() {
		r.fail(r.Stage(), ErrCanceled)
		return
	}
	if err := r.transition(StageAnalyzing, update); err != nil {
		r.fail(r.Stage(), err)
		return
	}

	snap := r.Snapshot()
	meta := models.AnalysisMetadata{
		Date:            r.recordedAt(),
		DurationSeconds: r.duration(),
		Participants:    participants(snap.Speakers),
	}
	start = time.Now()
	result, err := r.p.deps.Analyzer.Analyze(r.ctx, snap.Transcript, meta)
	r.p.deps.Metrics.RecordCall("analysis", err, time.Since(start).Seconds())
	if err != nil {
		r.failAfterCall(StageAnalyzing, err)
		return
	}

	// PERSISTING; the cancellation check and the stage change are one step
	if err := r.transitionUnlessCanceled(StagePersisting, func() { r.analysis = &result }); err != nil {
		r.fail(StageAnalyzing, err)
		return
	}

	draft := r.buildDraft(snap.Transcript, meta, result)
	start = time.Now()
	meeting, err := r.p.deps.Store.Save(context.WithoutCancel(r.ctx), draft)
	r.p.deps.Metrics.RecordCall("persistence", err, time.Since(start).Seconds())
	if err != nil {
		r.fail(StagePersisting, err)
		return
	}
	r.log.Info().Str("meetingId", meeting.ID).Msg("Meeting persisted")

	if r.req.DeleteSourceOnCompletion && r.p.deps.Deleter != nil {
		if err := r.p.deps.Deleter.DeleteAudioAndExemplars(r.req.AudioPath); err != nil {
			r.p.deps.Metrics.RecordCleanupFailure("audio")
			r.log.Warn().Err(err).Msg("Failed to delete source audio")
		}
	}

	r.complete(meeting)
}

func (r *Run) applyNames(names []string) {
	for i := range r.speakers {
		if names != nil {
			r.speakers[i].DisplayName = names[i]
		} else {
			r.speakers[i].DisplayName = diarization.GenericName(i)
		}
	}
}

func (r *Run) recordedAt() time.Time {
	if !r.req.RecordedAt.IsZero() {
		return r.req.RecordedAt
	}
	return r.startedAt
}

func (r *Run) duration() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durationSeconds
}

func (r *Run) buildDraft(transcript string, meta models.AnalysisMetadata, a models.AnalysisResult) models.MeetingDraft {
	title := a.SuggestedTitle
	if title == "" {
		title = models.DefaultTitle(meta.Date)
	}
	audioPath := r.req.AudioPath
	if r.req.DeleteSourceOnCompletion {
		audioPath = ""
	}
	return models.MeetingDraft{
		Title:           title,
		Date:            meta.Date,
		DurationSeconds: meta.DurationSeconds,
		Participants:    meta.Participants,
		Transcript:      transcript,
		Summary:         a.Summary,
		Decisions:       a.Decisions,
		ActionItems:     a.ActionItems,
		Tags:            a.KeyTopics,
		AudioFilePath:   audioPath,
	}
}

// transition moves to the next stage, applying mutate under the run lock,
// and publishes the new snapshot.
func (r *Run) transition(to Stage, mutate func()) error {
	return r.doTransition(to, mutate, false)
}

func (r *Run) transitionUnlessCanceled(to Stage, mutate func()) error {
	return r.doTransition(to, mutate, true)
}

func (r *Run) doTransition(to Stage, mutate func(), checkCanceled bool) error {
	r.mu.Lock()
	if checkCanceled && r.canceled {
		r.mu.Unlock()
		return ErrCanceled
	}
	if !canTransition(r.stage, to) {
		from := r.stage
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	from := r.stageLeftLocked(to)
	if mutate != nil {
		mutate()
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Stage changed")
	r.p.publish(events.KindStageChanged, r.id, snap)
	return nil
}

// stageLeftLocked records the time spent in the current stage and enters to.
func (r *Run) stageLeftLocked(to Stage) Stage {
	now := r.p.deps.Now()
	from := r.stage
	r.p.deps.Metrics.RecordStage(from.String(), now.Sub(r.stageStarted).Seconds())
	r.stage = to
	r.stageStarted = now
	r.updatedAt = now
	return from
}

// failAfterCall reports a collaborator failure, or a cancellation if the
// call was interrupted by Cancel.
func (r *Run) failAfterCall(stage Stage, err error) {
	if r.isCanceled() {
		r.fail(stage, ErrCanceled)
		return
	}
	r.fail(stage, err)
}

func (r *Run) fail(stage Stage, err error) {
	f := newFailure(stage, err)
	outcome := "failed"
	if errors.Is(err, ErrCanceled) {
		f.Message = "run canceled"
		outcome = "canceled"
	}

	r.mu.Lock()
	if r.stage.IsTerminal() {
		r.mu.Unlock()
		return
	}
	r.stageLeftLocked(StageFailed)
	r.failure = f
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.p.release(r)
	r.p.deps.Metrics.RecordRunEnd(outcome)
	r.log.Error().Err(err).
		Str("stage", stage.String()).
		Bool("recoverable", f.Recoverable).
		Msg("Run failed")
	r.p.publish(events.KindStageChanged, r.id, snap)
	r.p.publish(events.KindRunFailed, r.id, *f)
}

func (r *Run) complete(meeting models.PersistedMeeting) {
	r.mu.Lock()
	if !canTransition(r.stage, StageComplete) {
		r.mu.Unlock()
		return
	}
	r.stageLeftLocked(StageComplete)
	r.meeting = &meeting
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.p.release(r)
	r.p.deps.Metrics.RecordRunEnd("complete")
	r.log.Info().Str("meetingId", meeting.ID).Msg("Run complete")
	r.p.publish(events.KindStageChanged, r.id, snap)
	r.p.publish(events.KindRunComplete, r.id, meeting)
}

func participants(speakers []models.Speaker) []string {
	out := make([]string, 0, len(speakers))
	for _, s := range speakers {
		out = append(out, s.DisplayName)
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

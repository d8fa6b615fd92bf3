package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/2re1million/ekko/internal/app"
	"github.com/2re1million/ekko/internal/events"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/output"
	"github.com/2re1million/ekko/internal/service/pipeline"
)

// processAndFollow runs the pipeline for audioPath in the foreground,
// printing progress and prompting for speaker names. Canceling ctx cancels
// the run unless it is already persisting.
func processAndFollow(ctx context.Context, a *app.Application, f *output.Formatter, in io.Reader, audioPath string, deleteSource bool) error {
	ch, unsubscribe := a.Bus.Subscribe(64)
	defer unsubscribe()

	run, err := a.ProcessRecording(ctx, audioPath, deleteSource)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	var named chan []string
	canceled := false

	for {
		select {
		case <-run.Done():
			return report(f, run.Snapshot())

		case ev, ok := <-ch:
			if !ok {
				return report(f, run.Snapshot())
			}
			if ev.Key != run.ID() || ev.Kind != events.KindStageChanged {
				continue
			}
			snap, ok := ev.Payload.(pipeline.Snapshot)
			if !ok {
				continue
			}
			f.Stage(snap.Stage)
			if snap.Stage == pipeline.StageAwaitingSpeakerNames && named == nil {
				named = make(chan []string, 1)
				go func() { named <- promptNames(f, reader, snap.Speakers) }()
			}

		case names := <-named:
			if err := submitNames(run, names); err != nil {
				f.Warning(err.Error())
				named = make(chan []string, 1)
				go func() { named <- promptNames(f, reader, run.Snapshot().Speakers) }()
			}

		case <-ctx.Done():
			if canceled {
				continue
			}
			canceled = true
			if err := run.Cancel(); errors.Is(err, pipeline.ErrCancelNotAllowed) {
				f.Info("Meeting is being saved; waiting for it to finish")
			}
		}
	}
}

// promptNames reads one name per speaker; an empty line keeps the generic
// name. It returns nil when every name was left empty.
func promptNames(f *output.Formatter, r *bufio.Reader, speakers []models.Speaker) []string {
	names := make([]string, len(speakers))
	custom := false
	for i, sp := range speakers {
		f.SpeakerPrompt(i, sp)
		line, _ := r.ReadString('\n')
		name := strings.TrimSpace(line)
		if name == "" {
			name = sp.DisplayName
		} else {
			custom = true
		}
		names[i] = name
	}
	if !custom {
		return nil
	}
	return names
}

func submitNames(run *pipeline.Run, names []string) error {
	if names == nil {
		return run.SkipSpeakerNaming()
	}
	return run.SubmitSpeakerNames(names)
}

func report(f *output.Formatter, snap pipeline.Snapshot) error {
	switch {
	case snap.Meeting != nil:
		f.MeetingComplete(*snap.Meeting)
		return nil
	case snap.Failure != nil:
		f.RunFailed(*snap.Failure)
		return snap.Failure
	default:
		return fmt.Errorf("run ended in stage %s", snap.Stage)
	}
}

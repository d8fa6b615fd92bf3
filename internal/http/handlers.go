package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/2re1million/ekko/internal/app"
	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/pipeline"
)

const defaultMeetingsLimit = 50

type handlers struct {
	app *app.Application
}

type stopRequest struct {
	Process      bool `json:"process"`
	DeleteSource bool `json:"deleteSource"`
}

type stopResponse struct {
	models.RecordingStopped
	Run *pipeline.Snapshot `json:"run,omitempty"`
}

type runRequest struct {
	AudioPath    string `json:"audioPath"`
	DeleteSource bool   `json:"deleteSource"`
}

type namesRequest struct {
	Names []string `json:"names"`
}

func (h *handlers) readiness(w http.ResponseWriter, _ *http.Request) {
	if err := h.app.Ready(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) startRecording(w http.ResponseWriter, r *http.Request) {
	started, err := h.app.Recorder.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

// stopRecording stops the session and optionally hands the file to the
// pipeline.
func (h *handlers) stopRecording(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	stopped, err := h.app.Recorder.Stop()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := stopResponse{RecordingStopped: stopped}
	if req.Process {
		run, err := h.app.ProcessRecording(r.Context(), stopped.FilePath, req.DeleteSource)
		if err != nil {
			writeError(w, err)
			return
		}
		snap := run.Snapshot()
		resp.Run = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) recordingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Recorder.Status())
}

func (h *handlers) pauseUpdates(w http.ResponseWriter, _ *http.Request) {
	h.app.Recorder.PauseStatusUpdates()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resumeUpdates(w http.ResponseWriter, _ *http.Request) {
	h.app.Recorder.ResumeStatusUpdates()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Pipeline.List())
}

func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AudioPath == "" {
		writeError(w, pipeline.ErrNoAudioPath)
		return
	}
	run, err := h.app.ProcessRecording(r.Context(), req.AudioPath, req.DeleteSource)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request) (*pipeline.Run, bool) {
	run, err := h.app.Pipeline.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return run, true
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (h *handlers) submitSpeakerNames(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	var req namesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := run.SubmitSpeakerNames(req.Names); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (h *handlers) skipNaming(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	if err := run.SkipSpeakerNaming(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (h *handlers) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	if err := run.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("runId", run.ID()).Msg("Run cancel requested over HTTP")
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (h *handlers) listMeetings(w http.ResponseWriter, r *http.Request) {
	limit := defaultMeetingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errBadRequest)
			return
		}
		limit = n
	}
	meetings, err := h.app.Meetings.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (h *handlers) getMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Meetings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

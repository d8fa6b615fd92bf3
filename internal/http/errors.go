package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/pipeline"
	"github.com/2re1million/ekko/internal/service/recorder"
	"github.com/2re1million/ekko/internal/service/recording"
	"github.com/2re1million/ekko/internal/storage"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type errorMapping struct {
	target    error
	status    int
	code      string
	retryable bool
}

var errorMappings = []errorMapping{
	{recording.ErrAlreadyRecording, http.StatusConflict, "ERR_ALREADY_RECORDING", false},
	{recording.ErrNotRecording, http.StatusConflict, "ERR_NOT_RECORDING", false},
	{recording.ErrControllerClosed, http.StatusServiceUnavailable, "ERR_SHUTTING_DOWN", false},
	{recorder.ErrBackendUnavailable, http.StatusServiceUnavailable, "ERR_BACKEND_UNAVAILABLE", false},
	{pipeline.ErrRunActive, http.StatusConflict, "ERR_RUN_ACTIVE", true},
	{pipeline.ErrRunNotFound, http.StatusNotFound, "ERR_RUN_NOT_FOUND", false},
	{pipeline.ErrNotAwaitingNames, http.StatusConflict, "ERR_NOT_AWAITING_NAMES", false},
	{pipeline.ErrInvalidSpeakerNames, http.StatusBadRequest, "ERR_INVALID_SPEAKER_NAMES", true},
	{pipeline.ErrCancelNotAllowed, http.StatusConflict, "ERR_CANCEL_NOT_ALLOWED", false},
	{pipeline.ErrNoAudioPath, http.StatusBadRequest, "ERR_INVALID_REQUEST", false},
	{storage.ErrMeetingNotFound, http.StatusNotFound, "ERR_MEETING_NOT_FOUND", false},
	{os.ErrNotExist, http.StatusNotFound, "ERR_AUDIO_NOT_FOUND", false},
	{models.ErrNotConfigured, http.StatusServiceUnavailable, "ERR_NOT_CONFIGURED", false},
	{errBadRequest, http.StatusBadRequest, "ERR_INVALID_REQUEST", false},
}

var errBadRequest = errors.New("invalid request body")

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Code: "ERR_INTERNAL", Retryable: true}
	status := http.StatusInternalServerError
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, body.Code, body.Retryable = m.status, m.code, m.retryable
			break
		}
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	// An empty body leaves v at its defaults.
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/observability/logging"
)

// Cleaner removes processed audio and its speaker exemplars.
type Cleaner struct {
	log zerolog.Logger
}

// NewCleaner creates a cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{log: logging.WithComponent("cleanup")}
}

// DeleteAudioAndExemplars removes path and every <base>_speaker_*.wav next
// to it. Missing files are not an error.
func (c *Cleaner) DeleteAudioAndExemplars(path string) error {
	var errs []error
	var deleted int

	if err := os.Remove(path); err == nil {
		deleted++
	} else if !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pattern := filepath.Join(filepath.Dir(path), globEscape(base)+"_speaker_*.wav")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		errs = append(errs, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			deleted++
		} else if !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	c.log.Info().Str("path", path).Int("deleted", deleted).Int("failed", len(errs)).Msg("Audio cleanup finished")
	return errors.Join(errs...)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}

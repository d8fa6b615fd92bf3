// Package recorder drives an external audio capture program and writes its
// PCM output to a WAV file.
package recorder

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

// ErrBackendUnavailable is returned when no capture program can be found.
var ErrBackendUnavailable = errors.New("no audio capture backend available (install sox, arecord or ffmpeg)")

// Backend describes a capture program that writes raw s16le mono PCM to stdout.
type Backend struct {
	Name   string
	Binary string
	args   func(sampleRate int) []string
}

// Args returns the command line arguments for the given sample rate.
func (b Backend) Args(sampleRate int) []string {
	return b.args(sampleRate)
}

// Backends lists the supported capture programs in preference order.
var Backends = []Backend{
	{
		Name:   "sox",
		Binary: "sox",
		args: func(rate int) []string {
			return []string{"-q", "-d",
				"-t", "raw", "-r", strconv.Itoa(rate), "-b", "16", "-c", "1", "-e", "signed-integer", "-"}
		},
	},
	{
		Name:   "arecord",
		Binary: "arecord",
		args: func(rate int) []string {
			return []string{"-q", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(rate), "-t", "raw"}
		},
	},
	{
		Name:   "ffmpeg",
		Binary: "ffmpeg",
		args: func(rate int) []string {
			format, device := "pulse", "default"
			if runtime.GOOS == "darwin" {
				format, device = "avfoundation", ":default"
			}
			return []string{"-hide_banner", "-loglevel", "error",
				"-f", format, "-i", device,
				"-ac", "1", "-ar", strconv.Itoa(rate), "-f", "s16le", "-"}
		},
	},
}

// LookPathFunc resolves a binary name to a path.
type LookPathFunc func(file string) (string, error)

// Discover returns the preferred backend, or the first installed one when
// preferred is empty.
func Discover(preferred string, lookPath LookPathFunc) (Backend, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if preferred != "" {
		for _, b := range Backends {
			if b.Name != preferred {
				continue
			}
			path, err := lookPath(b.Binary)
			if err != nil {
				return Backend{}, fmt.Errorf("%w: %s not found", ErrBackendUnavailable, b.Binary)
			}
			b.Binary = path
			return b, nil
		}
		return Backend{}, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, preferred)
	}

	for _, b := range Backends {
		if path, err := lookPath(b.Binary); err == nil {
			b.Binary = path
			return b, nil
		}
	}
	return Backend{}, ErrBackendUnavailable
}

package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const (
	bitsPerSample = 16
	numChannels   = 1
)

// WAVWriter writes 16-bit mono PCM into a WAV container. The header is
// written as a placeholder and patched with the final sizes on Close.
type WAVWriter struct {
	mu         sync.Mutex
	f          *os.File
	path       string
	sampleRate int
	dataBytes  int64
	closed     bool
}

// CreateRecording creates recording_YYYYMMDD_HHMMSS.wav in dir. An existing
// file is never overwritten: a numeric suffix is appended instead.
func CreateRecording(dir string, now time.Time, sampleRate int) (*WAVWriter, error) {
	base := "recording_" + now.Format("20060102_150405")
	for i := 0; i < 1000; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.wav", base, i)
		}
		w, err := CreateWAV(filepath.Join(dir, name), sampleRate)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return w, err
	}
	return nil, fmt.Errorf("recorder: no free file name for %s in %s", base, dir)
}

// CreateWAV creates a new WAV file at path. It fails if the file exists.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	w := &WAVWriter{f: f, path: path, sampleRate: sampleRate}
	if _, err := f.Write(w.header()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("recorder: write wav header: %w", err)
	}
	return w, nil
}

// Path returns the file location.
func (w *WAVWriter) Path() string { return w.path }

// Name returns the file name without directory.
func (w *WAVWriter) Name() string { return filepath.Base(w.path) }

// DataBytes returns the number of PCM bytes written so far.
func (w *WAVWriter) DataBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataBytes
}

func (w *WAVWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.f.Write(p)
	w.dataBytes += int64(n)
	return n, err
}

// Close patches the header sizes and closes the file. Safe to call twice.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.f.WriteAt(w.header(), 0); err != nil {
		w.f.Close()
		return fmt.Errorf("recorder: patch wav header: %w", err)
	}
	return w.f.Close()
}

func (w *WAVWriter) header() []byte {
	h := make([]byte, wavHeaderSize)
	byteRate := w.sampleRate * numChannels * bitsPerSample / 8
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+w.dataBytes))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], numChannels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(w.dataBytes))
	return h
}

// WAVInfo describes a PCM WAV file.
type WAVInfo struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataBytes     int64
}

// Duration returns the playback length implied by the data size.
func (i WAVInfo) Duration() time.Duration {
	bytesPerSecond := int64(i.SampleRate) * int64(i.Channels) * int64(i.BitsPerSample) / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(i.DataBytes * int64(time.Second) / bytesPerSecond)
}

// ReadWAVInfo reads the canonical 44 byte header of a WAV file. When the data
// size field is unset, the file size is used instead.
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return WAVInfo{}, fmt.Errorf("recorder: read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("recorder: %s is not a WAV file", filepath.Base(path))
	}

	info := WAVInfo{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
		DataBytes:     int64(binary.LittleEndian.Uint32(header[40:44])),
	}
	if info.DataBytes == 0 {
		if fi, err := f.Stat(); err == nil && fi.Size() > wavHeaderSize {
			info.DataBytes = fi.Size() - wavHeaderSize
		}
	}
	return info, nil
}

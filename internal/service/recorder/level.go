package recorder

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
)

// LevelMeter passes PCM through while tracking the RMS level of the most
// recent chunk, normalised to [0, 1]. Reads must come from one goroutine;
// Level may be called from any.
type LevelMeter struct {
	r     io.Reader
	level atomic.Uint64

	// odd holds the first byte of a sample split across two reads.
	odd    byte
	hasOdd bool
}

// NewLevelMeter wraps r.
func NewLevelMeter(r io.Reader) *LevelMeter {
	return &LevelMeter{r: r}
}

func (m *LevelMeter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.measure(p[:n])
	}
	return n, err
}

// measure keeps sample alignment across reads that return an odd count.
func (m *LevelMeter) measure(chunk []byte) {
	if m.hasOdd {
		chunk = append([]byte{m.odd}, chunk...)
		m.hasOdd = false
	}
	if len(chunk)%2 == 1 {
		m.odd = chunk[len(chunk)-1]
		m.hasOdd = true
		chunk = chunk[:len(chunk)-1]
	}
	if len(chunk) >= 2 {
		m.level.Store(math.Float64bits(Level(chunk)))
	}
}

// Level returns the last measured level.
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Level computes the RMS of s16le samples in pcm, divided by full scale.
// A trailing odd byte is ignored.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	rms := math.Sqrt(sum/float64(samples)) / 32768
	if rms > 1 {
		return 1
	}
	return rms
}

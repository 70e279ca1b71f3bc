// Package audioring implements the bounded SPSC-style ring of interleaved
// stereo f32 samples described in spec.md §4.3 (C3).
//
// It generalizes the teacher's leftoverAudio []byte + noLockCopyLeftoverAudio
// compaction (controller_yes_audio.go) into a true circular buffer, which the
// teacher's own comment flags as the improvement its leftover-slice approach
// was missing ("far from ideal... to be improved with circular buffers").
// Storage itself is delegated to github.com/drgolem/ringbuffer, the same
// producer/consumer byte ring drgolem-musictools' pkg/audioplayer uses for
// its decode-to-output buffer; Ring adds the sample-oriented VOD/live fill
// policies spec.md §4.3 requires on top of it.
package audioring

import (
	"encoding/binary"
	"math"

	"github.com/drgolem/ringbuffer"
)

// bytesPerSample is the wire width of one interleaved float32 sample inside
// the underlying byte ring.
const bytesPerSample = 4

// MinCapacitySamples is the minimum ring capacity mandated by spec.md §3:
// 2 seconds of stereo audio at 48000 Hz (samples, not frames; a stereo frame
// is 2 samples).
const MinCapacitySamples = 2 * 2 * 48000

// Ring is a fixed-capacity circular buffer of interleaved stereo float32
// samples, backed by a *ringbuffer.RingBuffer of bytes. Not safe for
// concurrent use; the caller guards it with the queue lock spec.md §5
// mandates.
type Ring struct {
	rb       *ringbuffer.RingBuffer
	capacity int // samples, not bytes

	encodeScratch  []byte
	decodeScratch  []byte
	discardScratch []byte
}

// New returns a ring with the given capacity in samples (not frames). The
// capacity is raised to MinCapacitySamples if smaller.
func New(capacity int) *Ring {
	if capacity < MinCapacitySamples {
		capacity = MinCapacitySamples
	}
	return newRaw(capacity)
}

// newRaw builds a ring at exactly capacity samples, without the
// MinCapacitySamples floor; used by tests that exercise fill-policy edge
// cases at capacities spec.md's floor would otherwise mask.
func newRaw(capacity int) *Ring {
	return &Ring{
		rb:       ringbuffer.New(uint64(capacity * bytesPerSample)),
		capacity: capacity,
	}
}

// Capacity returns the ring's fixed capacity in samples.
func (r *Ring) Capacity() int { return r.capacity }

// Available returns the number of samples currently readable.
func (r *Ring) Available() int {
	return int(r.rb.AvailableRead()) / bytesPerSample
}

// FillFraction returns Available()/Capacity(), used for VOD backpressure
// (spec.md §4.1 step 1).
func (r *Ring) FillFraction() float64 {
	return float64(r.Available()) / float64(r.capacity)
}

// Write appends samples, respecting the VOD fill policy: only while
// available < capacity; anything beyond that is silently dropped (spec.md
// §4.3). Returns the number of samples actually written.
func (r *Ring) Write(samples []float32) int {
	room := r.capacity - r.Available()
	if room <= 0 {
		return 0
	}
	if len(samples) > room {
		samples = samples[:room]
	}
	r.encodeScratch = encodeFloat32s(r.encodeScratch, samples)
	n, _ := r.rb.Write(r.encodeScratch)
	return n / bytesPerSample
}

// WriteDroppingOldest appends samples, dropping the oldest buffered samples
// to make room when necessary (the live fill policy, spec.md §4.1/§4.3:
// "live sources may overwrite read index to drop oldest samples"). It never
// drops more than needed and never drops samples being written in the same
// call beyond what doesn't fit.
func (r *Ring) WriteDroppingOldest(samples []float32) {
	if len(samples) > r.capacity {
		// only the tail fits at all; the rest could never be read anyway
		samples = samples[len(samples)-r.capacity:]
	}
	if deficit := len(samples) - (r.capacity - r.Available()); deficit > 0 {
		r.dropOldest(deficit)
	}
	r.encodeScratch = encodeFloat32s(r.encodeScratch, samples)
	r.rb.Write(r.encodeScratch)
}

// dropOldest discards n samples from the read side, the ringbuffer's own
// Read advancing its internal read cursor; ringbuffer.RingBuffer has no
// dedicated skip/discard primitive, so this reads into a scratch buffer and
// throws the result away.
func (r *Ring) dropOldest(n int) {
	if n > r.Available() {
		n = r.Available()
	}
	if n <= 0 {
		return
	}
	need := n * bytesPerSample
	if cap(r.discardScratch) < need {
		r.discardScratch = make([]byte, need)
	}
	r.rb.Read(r.discardScratch[:need])
}

// ReadInto copies up to min(Available(), len(dst)) samples into dst and
// advances the read index accordingly, returning the count copied. Short
// reads are expected and allowed (spec.md §4.5): callers must zero-fill any
// remainder themselves.
//
// The request is clamped to Available() before touching the byte ring so
// Read is never asked for more than is buffered; callers hold the shared
// queue lock, and a read that waited for more data would stall the decode
// worker's writes.
func (r *Ring) ReadInto(dst []float32) int {
	want := len(dst)
	if avail := r.Available(); want > avail {
		want = avail
	}
	if want <= 0 {
		return 0
	}
	need := want * bytesPerSample
	if cap(r.decodeScratch) < need {
		r.decodeScratch = make([]byte, need)
	}
	buf := r.decodeScratch[:need]
	n, err := r.rb.Read(buf)
	if err != nil && n == 0 {
		return 0
	}
	return decodeFloat32s(dst, buf[:n])
}

// Clear resets the ring to empty without deallocating its backing array.
func (r *Ring) Clear() {
	r.dropOldest(r.Available())
}

func encodeFloat32s(dst []byte, src []float32) []byte {
	need := len(src) * bytesPerSample
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*bytesPerSample:], math.Float32bits(s))
	}
	return dst
}

func decodeFloat32s(dst []float32, src []byte) int {
	n := len(src) / bytesPerSample
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*bytesPerSample:]))
	}
	return n
}

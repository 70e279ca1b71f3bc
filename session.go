package mediacore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/erparts/reisen"
	"github.com/zaf/resample"
	"golang.org/x/sync/errgroup"

	"github.com/go-mediacore/mediacore/internal/audioring"
	"github.com/go-mediacore/mediacore/internal/clock"
	"github.com/go-mediacore/mediacore/internal/videoqueue"
)

// VideoDecoderInfo describes the selected video stream (spec.md §3 "Media
// Session").
type VideoDecoderInfo struct {
	CodecName     string
	Width         int
	Height        int
	FrameInterval time.Duration
}

// AudioDecoderInfo describes the selected audio stream.
type AudioDecoderInfo struct {
	CodecName      string
	SourceRate     int
	SourceChannels int
	SourceFormat   string
}

// vodDropWindow is the "skip if older than playback_time - 500ms" rule
// spec.md §9 mandates uniformly for VOD sources, regardless of whether the
// decode loop is threaded (the source's single-threaded variant had this
// rule, the threaded variant didn't; spec.md resolves the discrepancy by
// keeping it everywhere).
const vodDropWindow = 500 * time.Millisecond

// vodPromoteWindow is the presentation-scheduler tolerance (spec.md §4.5,
// §8): a frame is promoted once its PTS is within 16ms of clock time.
const vodPromoteWindow = 16 * time.Millisecond

// liveJitter is the scheduling tolerance used for live enqueue pacing,
// carried over from the teacher's controller_stream.go defaultJitter.
const liveJitter = 15 * time.Millisecond

// liveMaxPace bounds how long a single live-pacing sleep can hold up the
// decode loop, so a large PTS jump can never look like a stall.
const liveMaxPace = 200 * time.Millisecond

const (
	notPlayingSleep      = 10 * time.Millisecond
	vodBackpressureSleep = 5 * time.Millisecond
)

// mediaSession owns the demuxer/decoder resources and drives C1's decode
// worker (spec.md §4.1). It is created by Player.Open and torn down by
// Player.Close/Player.Seek-restart. The video queue, audio ring, and
// playback clock it fills are the same instances the Player's scheduler
// (C5) reads, shared under the queue lock spec.md §5 mandates; the clock is
// shared under the state lock.
type mediaSession struct {
	url   string
	opts  Options
	media *reisen.Media

	video *reisen.VideoStream
	audio *reisen.AudioStream // nil if source has no audio stream

	videoInfo VideoDecoderInfo
	audioInfo *AudioDecoderInfo // nil if no audio stream
	duration  time.Duration
	isLive    bool

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
}

// openSession implements the open contract of spec.md §4.1.
//
// opts.ReconnectMaxBackoff and opts.AllowedProtocols are resolved and stored
// on the session (the protocol whitelist is filled in for m3u8 URLs; the
// URL is not checked against it) but reisen's NewMedia takes only a URL — the teacher never
// threads ffmpeg dictionary-style options through it either. They remain
// available on Options/mediaSession for a reisen version that exposes an
// options-accepting constructor.
func openSession(url string, opts Options) (*mediaSession, error) {
	opts = opts.resolveForURL(url)

	if opts.NetworkReconnect {
		if err := reisen.NetworkInitialize(); err != nil {
			return nil, newError(OpenFailed, err.Error())
		}
	}

	media, err := reisen.NewMedia(url)
	if err != nil {
		if opts.NetworkReconnect {
			reisen.NetworkDeinitialize()
		}
		return nil, newError(OpenFailed, err.Error())
	}

	videoStreams := media.VideoStreams()
	audioStreams := media.AudioStreams()
	if len(videoStreams) == 0 && len(audioStreams) == 0 {
		media.Close()
		if opts.NetworkReconnect {
			reisen.NetworkDeinitialize()
		}
		return nil, newError(NoVideoStream, ErrNoVideoStream.Error())
	}
	if len(videoStreams) > 1 {
		pkgLogger.Printf("WARNING: '%s' has multiple video streams; defaulting to the first", filepath.Base(url))
	}
	if len(audioStreams) > 1 {
		pkgLogger.Printf("WARNING: '%s' has multiple audio streams; defaulting to the first", filepath.Base(url))
	}

	s := &mediaSession{url: url, opts: opts, media: media}

	if len(videoStreams) > 0 {
		vs := videoStreams[0]
		frNum, frDenom := vs.FrameRate()
		frameInterval := time.Duration(0)
		if frNum > 0 {
			frameInterval = (time.Second * time.Duration(frDenom)) / time.Duration(frNum)
		}
		s.video = vs
		s.videoInfo = VideoDecoderInfo{
			CodecName:     vs.CodecName(),
			Width:         vs.Width(),
			Height:        vs.Height(),
			FrameInterval: frameInterval,
		}
		if d, err := vs.Duration(); err == nil && d > 0 {
			s.duration = max(s.duration, d)
		}
	}

	if len(audioStreams) > 0 {
		as := audioStreams[0]
		s.audio = as
		channels := as.ChannelCount()
		if channels <= 0 {
			channels = 2
		}
		s.audioInfo = &AudioDecoderInfo{CodecName: as.CodecName(), SourceRate: as.SampleRate(), SourceChannels: channels}
		if d, err := as.Duration(); err == nil && d > 0 {
			s.duration = max(s.duration, d)
		}
	}

	// is_live iff duration is unknown (spec.md §3): neither stream reported
	// a usable duration.
	s.isLive = s.duration <= 0

	return s, nil
}

// start launches the decode worker. ps carries the callbacks into the owning
// Player's state-lock-guarded fields so the worker never
// takes the state lock itself for longer than a single field read/write
// (spec.md §5: "must never hold the state lock across a blocking demuxer
// read").
func (s *mediaSession) start(ps *playerSync) error {
	// OpenDecode locates and opens a decoder for every selected stream in
	// one call; a failure here means reisen couldn't find a usable decoder
	// at all, distinct from a stream's decode context failing to open below.
	if err := s.media.OpenDecode(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodecNotFound, err)
	}
	if s.video != nil {
		if err := s.video.Open(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodecOpenFailed, err)
		}
	}
	if s.audio != nil {
		if err := s.audio.Open(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodecOpenFailed, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	s.group = group
	s.done = make(chan struct{})

	group.Go(func() error {
		defer close(s.done)
		return s.decodeLoop(gctx, ps)
	})
	return nil
}

// stop cancels the decode worker and waits for it to exit (spec.md §5
// "Cancellation"). If the worker has not exited within 2 seconds a warning
// is logged; the wait is not bounded, and stop returns only once the
// worker has ended.
func (s *mediaSession) stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		pkgLogger.Printf("WARNING: decode worker for '%s' did not stop within 2s", filepath.Base(s.url))
	}

	err := s.group.Wait()
	s.cancel = nil
	s.group = nil
	s.done = nil

	if s.video != nil {
		_ = s.video.Close()
	}
	if s.audio != nil {
		_ = s.audio.Close()
	}
	closeErr := s.media.CloseDecode()
	if err == nil {
		err = closeErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// close tears down the session permanently (spec.md §5 "Resource lifetime").
func (s *mediaSession) close() error {
	err := s.stop()
	s.media.Close()
	if s.opts.NetworkReconnect {
		reisen.NetworkDeinitialize()
	}
	return err
}

// playerSync is the narrow surface of the Player the decode worker touches,
// kept separate from the Player type to make the state-lock/queue-lock
// discipline explicit at the call site rather than implicit in a god
// object. All methods acquire exactly the lock their name promises, and
// the worker never holds one across the other.
type playerSync struct {
	stateMu *sync.Mutex
	queueMu *sync.Mutex

	isPlaying         func() bool
	wantLoop          func() bool
	onFirstFrame      func(now time.Time, pts time.Duration)
	clockTime         func(now time.Time) time.Duration
	setEndOfFile      func()
	setError          func(err error)
	pixelFormat       func() PixelFormat

	videoQueue *videoqueue.Queue
	audioRing  *audioring.Ring

	onVideoFrame func(data []byte, w, h, stride int, pts time.Duration)
	onAudio      func(samples []float32, n int, pts time.Duration)
}

// decodeLoop is C1's decode loop (spec.md §4.1).
func (s *mediaSession) decodeLoop(ctx context.Context, ps *playerSync) error {
	firstFrameDecoded := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !ps.isPlaying() {
			if sleepOrDone(ctx, notPlayingSleep) {
				return ctx.Err()
			}
			continue
		}

		// step 1: VOD backpressure check (spec.md §4.1).
		if !s.isLive {
			ps.queueMu.Lock()
			full := ps.videoQueue.Count() >= videoqueue.Capacity-1
			loaded := ps.audioRing.FillFraction() >= 0.75
			ps.queueMu.Unlock()
			if full && loaded {
				if sleepOrDone(ctx, vodBackpressureSleep) {
					return ctx.Err()
				}
				continue
			}
		}

		packet, found, err := s.media.ReadPacket()
		if err != nil {
			ps.setError(err)
			return err
		}
		if !found {
			// EOF.
			if ps.wantLoop() && !s.isLive {
				if err := s.seekTo(0); err != nil {
					ps.setError(err)
					return err
				}
				firstFrameDecoded = false
				ps.queueMu.Lock()
				ps.videoQueue.Clear()
				ps.audioRing.Clear()
				ps.queueMu.Unlock()
				continue
			}
			ps.setEndOfFile()
			return nil
		}

		switch packet.Type() {
		case reisen.StreamVideo:
			if s.video == nil || packet.StreamIndex() != s.video.Index() {
				continue
			}
			frame, got, err := s.video.ReadVideoFrame()
			if err != nil {
				// non-fatal: this frame is skipped (spec.md §4.1/§7).
				continue
			}
			if !got || frame == nil {
				continue
			}

			pts, err := frame.PresentationOffset()
			if err != nil {
				continue
			}

			now := time.Now()
			if !firstFrameDecoded {
				firstFrameDecoded = true
				ps.onFirstFrame(now, pts)
			}

			if !s.isLive {
				current := ps.clockTime(now)
				if pts-current < -vodDropWindow {
					continue // bounded catch-up: drop stale frame
				}
			} else if firstFrameDecoded {
				// live enqueue pacing (spec.md §9 supplement, carried from the
				// teacher's controller_stream.go scheduleLoop): if decode is
				// running comfortably ahead of the presentation clock, ease off
				// rather than piling frames into the queue only to drop them
				// again moments later. Bounded so a slow source never stalls
				// the loop (spec.md §4.1: "Live sources never back off").
				current := ps.clockTime(now)
				if aheadBy := pts - current - liveJitter; aheadBy > 0 {
					wait := aheadBy
					if wait > liveMaxPace {
						wait = liveMaxPace
					}
					if sleepOrDone(ctx, wait) {
						return ctx.Err()
					}
				}
			}

			data := frame.Data()
			if ps.pixelFormat() == PixelFormatBGRA {
				swapRedBlue(data)
			}

			ps.queueMu.Lock()
			if s.isLive {
				if ps.videoQueue.Full() {
					ps.videoQueue.DropOldest()
				}
			}
			// VOD: the backpressure check above keeps the queue from
			// reaching capacity under normal operation; if it still did
			// (e.g. a burst), push still must not silently corrupt state,
			// so we wait briefly for room rather than overflow a slot.
			for !s.isLive && ps.videoQueue.Full() {
				ps.queueMu.Unlock()
				if sleepOrDone(ctx, vodBackpressureSleep) {
					return ctx.Err()
				}
				ps.queueMu.Lock()
			}
			ps.videoQueue.Push(data, s.videoInfo.Width, s.videoInfo.Height, s.videoInfo.Width*4, pts.Seconds())
			ps.queueMu.Unlock()

			if ps.onVideoFrame != nil {
				ps.onVideoFrame(data, s.videoInfo.Width, s.videoInfo.Height, s.videoInfo.Width*4, pts)
			}

		case reisen.StreamAudio:
			if s.audio == nil || packet.StreamIndex() != s.audio.Index() {
				continue
			}
			frame, got, err := s.audio.ReadAudioFrame()
			if err != nil {
				continue // non-fatal
			}
			if !got || frame == nil {
				continue
			}
			pts, err := frame.PresentationOffset()
			if err != nil {
				pts = 0
			}

			samples := convertToOutputAudio(frame.Data(), s.audioInfo.SourceChannels, s.audioInfo.SourceRate)

			ps.queueMu.Lock()
			if s.isLive {
				ps.audioRing.WriteDroppingOldest(samples)
			} else {
				ps.audioRing.Write(samples)
			}
			ps.queueMu.Unlock()

			if ps.onAudio != nil {
				ps.onAudio(samples, len(samples), pts)
			}

		default:
			// ignore other packet types (data, subtitle, unknown)
		}
	}
}

// seekTo rewinds both streams to position and flushes decoder state. Used
// both by loop-on-EOF (position 0) and by Player.Seek.
func (s *mediaSession) seekTo(position time.Duration) error {
	if s.video != nil {
		if err := s.video.Rewind(position); err != nil {
			return err
		}
	}
	if s.audio != nil {
		if err := s.audio.Rewind(position); err != nil {
			return err
		}
	}
	return nil
}

// sleepOrDone sleeps for d unless ctx is done first, returning true if ctx
// ended the wait early.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

// swapRedBlue converts tightly packed RGBA8 in place to BGRA8.
func swapRedBlue(data []byte) {
	for i := 0; i+3 < len(data); i += 4 {
		data[i], data[i+2] = data[i+2], data[i]
	}
}

// convertToOutputAudio converts a raw 16-bit signed little-endian PCM audio
// frame (reisen's decode format; the teacher never renegotiates format, it
// simply requires the consumer's rate to match) at srcChannels/srcRate into
// interleaved stereo f32 at OutputSampleRate, the fixed target spec.md
// §4.1 mandates regardless of source. Mono is duplicated to both output
// channels; more than 2 channels are downmixed by averaging every channel
// beyond the first two into left/right (spec.md Non-goals excludes
// multi-track audio, not multi-channel single tracks, so this keeps
// surround sources audible rather than silently truncating them).
func convertToOutputAudio(raw []byte, srcChannels, srcRate int) []float32 {
	if srcChannels <= 0 {
		srcChannels = 1
	}
	const bytesPerSample = 2
	frameCount := len(raw) / (bytesPerSample * srcChannels)
	stereo := make([]float32, frameCount*2)
	for f := 0; f < frameCount; f++ {
		base := f * srcChannels * bytesPerSample
		left, right := float32(0), float32(0)
		switch {
		case srcChannels == 1:
			v := decodeS16LE(raw, base)
			left, right = v, v
		case srcChannels == 2:
			left = decodeS16LE(raw, base)
			right = decodeS16LE(raw, base+bytesPerSample)
		default:
			left = decodeS16LE(raw, base)
			right = decodeS16LE(raw, base+bytesPerSample)
			for ch := 2; ch < srcChannels; ch++ {
				v := decodeS16LE(raw, base+ch*bytesPerSample)
				left += v
				right += v
			}
			left /= float32(srcChannels - 1)
			right /= float32(srcChannels - 1)
		}
		stereo[2*f] = left
		stereo[2*f+1] = right
	}
	return resampleStereo(stereo, srcRate, OutputSampleRate)
}

func decodeS16LE(raw []byte, offset int) float32 {
	if offset+1 >= len(raw) {
		return 0
	}
	v := int16(raw[offset]) | int16(raw[offset+1])<<8
	return float32(v) / 32768.0
}

// resampleStereo resamples interleaved stereo samples from srcRate to
// dstRate using github.com/zaf/resample, the same library
// drgolem-musictools' audio pipeline requires for rate conversion
// (other_examples/manifests/drgolem-musictools/go.mod). reisen hands back
// PCM at the source stream's native rate with no renegotiation (the teacher
// never resamples; it just requires the consumer's rate to match), so this
// is the only place in the driver the fixed 48kHz output rate spec.md §4.1
// mandates is actually enforced.
//
// zaf/resample is an io.Writer wrapper, so stereo is round-tripped through
// 16-bit PCM: encode to S16LE, push through the resampler into a buffer,
// decode the buffer back to f32. If construction or the write ever fails
// (malformed rate pair), the frame is passed through unresampled rather than
// dropped, logged the same way session.go already degrades on other
// reisen-adjacent surprises.
func resampleStereo(stereo []float32, srcRate, dstRate int) []float32 {
	frames := len(stereo) / 2
	if srcRate <= 0 || srcRate == dstRate || frames == 0 {
		return stereo
	}

	pcm := make([]byte, frames*stereoFrameBytes)
	for i, s := range stereo {
		encodeS16LE(pcm[i*2:], s)
	}

	var out bytes.Buffer
	r, err := resample.New(&out, float64(srcRate), float64(dstRate), 2, resample.I16, resample.MediumQ)
	if err != nil {
		pkgLogger.Printf("WARNING: resample.New(%d->%d) failed: %v; passing audio through unresampled", srcRate, dstRate, err)
		return stereo
	}
	if _, err := r.Write(pcm); err != nil {
		pkgLogger.Printf("WARNING: resample write failed: %v; passing audio through unresampled", err)
		return stereo
	}

	resampled := out.Bytes()
	outFrames := len(resampled) / stereoFrameBytes
	result := make([]float32, outFrames*2)
	for i := range result {
		result[i] = decodeS16LE(resampled, i*2)
	}
	return result
}

// stereoFrameBytes is one interleaved L+R pair of 16-bit PCM samples.
const stereoFrameBytes = 2 * 2

func encodeS16LE(dst []byte, v float32) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	s := int16(math.Round(float64(v) * 32767))
	dst[0] = byte(s)
	dst[1] = byte(s >> 8)
}

var _ io.Closer = (*mediaSession)(nil)

func (s *mediaSession) Close() error { return s.close() }

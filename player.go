// Package mediacore implements the decode pipeline of a media playback
// engine: a demuxer/decoder driver (C1), a bounded video frame queue (C2),
// a bounded audio ring buffer (C3), a wall-clock playback clock (C4), a
// presentation scheduler (C5) and the player state machine gating them all
// (C6). See spec.md for the full component design.
//
// Usage mirrors the teacher package's pull-based API:
//
//	p := mediacore.NewPlayer()
//	if err := p.Open(url, nil); err != nil { ... }
//	p.Play()
//	for each host tick:
//	    p.Update(dt)
//	    if frame, ok := p.GetVideoFrame(); ok { /* upload frame.Data to a texture */ }
//	// from the audio callback:
//	p.ReadAudio(dst)
package mediacore

import (
	"context"
	"sync"
	"time"

	"github.com/go-mediacore/mediacore/internal/audioring"
	"github.com/go-mediacore/mediacore/internal/clock"
	"github.com/go-mediacore/mediacore/internal/videoqueue"
)

// Player is the host-facing handle described in spec.md §6. The zero value
// is not usable; construct with NewPlayer.
//
// Concurrency: exactly two mutexes guard Player state, matching spec.md §5.
// stateMu guards state, lastErr, the clock, firstFrameDecoded, speed,
// volume, loop. queueMu guards the video queue, audio ring, and display
// frame. Lock ordering when both are needed: stateMu before queueMu.
type Player struct {
	stateMu sync.Mutex
	state   State
	lastErr *Error
	clk     *clock.Clock
	firstFrameDecoded bool
	speed       float64
	volume      float64
	loop        bool
	pixelFmt    PixelFormat
	hwAccelHint string

	queueMu    sync.Mutex
	videoQueue *videoqueue.Queue
	audioRing  *audioring.Ring
	display    displayFrame
	videoPTS   float64
	currentPTS float64

	sess     *mediaSession
	videoInfo *VideoDecoderInfo
	audioInfo *AudioDecoderInfo
	duration  time.Duration
	isLive    bool

	resolver Resolver

	onVideoFrame func(data []byte, w, h, stride int, pts float64)
	onAudio      func(samples []float32, n, ch int, pts float64)
}

// NewPlayer constructs an idle player with default parameters (speed 1.0,
// volume 1.0, loop off, RGBA output).
func NewPlayer() *Player {
	return &Player{
		state:      Idle,
		clk:        clock.New(),
		speed:      1.0,
		volume:     1.0,
		videoQueue: videoqueue.New(),
		audioRing:  audioring.New(audioring.MinCapacitySamples),
		resolver:   DefaultResolver,
	}
}

// SetResolver installs the URL resolver collaborator used by Open when
// passed a URL that needs resolving before it is directly playable
// (spec.md §6/§9). The default is DefaultResolver (identity passthrough).
func (p *Player) SetResolver(r Resolver) {
	if r == nil {
		r = DefaultResolver
	}
	p.resolver = r
}

// --- lifecycle: open/close ---

// Open opens a media source (spec.md §4.1/§6). options is a flat
// "key=value" list (see ParseOptions); pass nil for defaults.
func (p *Player) Open(url string, options []string) error {
	resolved, err := p.resolver(context.Background(), url)
	if err != nil {
		p.failOpen(OpenFailed, err.Error())
		return newError(OpenFailed, err.Error())
	}

	p.stateMu.Lock()
	p.state = Opening
	p.stateMu.Unlock()

	opts := ParseOptions(options)
	sess, err := openSession(resolved.DirectURL, opts)
	if err != nil {
		var code Code = OpenFailed
		if mcErr, ok := err.(*Error); ok {
			code = mcErr.Code
		}
		p.failOpen(code, err.Error())
		return err
	}

	p.queueMu.Lock()
	p.videoQueue.Clear()
	p.audioRing.Clear()
	p.display = displayFrame{}
	p.queueMu.Unlock()

	p.stateMu.Lock()
	p.sess = sess
	p.videoInfo = nonNilVideoInfo(sess)
	p.audioInfo = sess.audioInfo
	p.duration = sess.duration
	p.isLive = sess.isLive
	p.pixelFmt = opts.PixelFormat
	p.hwAccelHint = opts.HWAccelHint
	p.firstFrameDecoded = false
	p.clk = clock.New()
	p.state = Ready
	p.lastErr = nil
	p.stateMu.Unlock()
	return nil
}

func nonNilVideoInfo(sess *mediaSession) *VideoDecoderInfo {
	if sess.video == nil {
		return nil
	}
	info := sess.videoInfo
	return &info
}

func (p *Player) failOpen(code Code, msg string) {
	p.stateMu.Lock()
	p.state = StateError
	p.lastErr = newError(code, msg)
	p.stateMu.Unlock()
}

// Close tears down the player's resources and returns it to Idle. Close is
// idempotent and safe from any state (spec.md §4.6).
func (p *Player) Close() error {
	p.stateMu.Lock()
	sess := p.sess
	p.sess = nil
	p.stateMu.Unlock()

	var err error
	if sess != nil {
		err = sess.close()
	}

	p.queueMu.Lock()
	p.videoQueue.Clear()
	p.audioRing.Clear()
	p.display = displayFrame{}
	p.queueMu.Unlock()

	p.stateMu.Lock()
	p.state = Idle
	p.lastErr = nil
	p.videoInfo = nil
	p.audioInfo = nil
	p.duration = 0
	p.isLive = false
	p.firstFrameDecoded = false
	p.clk = clock.New()
	p.stateMu.Unlock()
	return err
}

// --- playback controls ---

// Play transitions Ready/Paused/Stopped -> Playing. Rejected with NotReady
// from any other state (spec.md §4.6). Playing while already Playing is a
// no-op.
func (p *Player) Play() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch p.state {
	case Playing:
		return nil
	case Ready, Paused, Stopped:
	default:
		return newError(NotReady, ErrNotReady.Error())
	}

	sess := p.sess
	if sess == nil {
		return newError(InvalidPlayer, "no open session")
	}

	now := time.Now()
	p.clk.Play(now)

	wasStopped := p.state == Stopped
	p.state = Playing

	if sess.cancel == nil {
		if wasStopped {
			if err := sess.seekTo(0); err != nil {
				p.state = StateError
				p.lastErr = newError(DecodeFailed, err.Error())
				return p.lastErr
			}
			p.firstFrameDecoded = false
			p.queueMu.Lock()
			p.videoQueue.Clear()
			p.audioRing.Clear()
			p.queueMu.Unlock()
		}
		ps := p.newPlayerSync(sess)
		if err := sess.start(ps); err != nil {
			p.state = StateError
			p.lastErr = newError(codecErrorCode(err), err.Error())
			return p.lastErr
		}
	}
	return nil
}

// Pause transitions Playing -> Paused, freezing the clock. No-op if not
// Playing.
func (p *Player) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != Playing {
		return nil
	}
	p.clk.Pause(time.Now())
	p.state = Paused
	return nil
}

// Stop halts playback, rewinds to position 0, and stops the decode worker.
// Safe from Playing or Paused.
func (p *Player) Stop() error {
	p.stateMu.Lock()
	sess := p.sess
	p.stateMu.Unlock()

	if sess != nil {
		if err := sess.stop(); err != nil {
			p.stateMu.Lock()
			p.state = StateError
			p.lastErr = newError(DecodeFailed, err.Error())
			p.stateMu.Unlock()
			return p.lastErr
		}
	}

	p.queueMu.Lock()
	p.videoQueue.Clear()
	p.audioRing.Clear()
	p.display = displayFrame{}
	p.queueMu.Unlock()

	p.stateMu.Lock()
	p.state = Stopped
	p.clk.Pause(time.Now())
	p.clk.Anchor(time.Now(), 0)
	p.currentPTS = 0
	p.videoPTS = 0
	p.stateMu.Unlock()
	return nil
}

// Seek moves the playback position (spec.md §4.6). Rejected with
// SeekFailed on a live source, with no side effects.
func (p *Player) Seek(seconds float64) error {
	p.stateMu.Lock()
	if p.isLive {
		p.stateMu.Unlock()
		return newError(SeekFailed, ErrSeekOnLive.Error())
	}
	sess := p.sess
	wasPlaying := p.state == Playing
	state := p.state
	p.stateMu.Unlock()

	if sess == nil || (state != Playing && state != Paused && state != Stopped) {
		return newError(NotReady, ErrNotReady.Error())
	}

	if err := sess.stop(); err != nil {
		return newError(SeekFailed, err.Error())
	}
	if err := sess.seekTo(time.Duration(seconds * float64(time.Second))); err != nil {
		return newError(SeekFailed, err.Error())
	}

	p.queueMu.Lock()
	p.videoQueue.Clear()
	p.audioRing.Clear()
	p.display = displayFrame{}
	p.queueMu.Unlock()

	p.stateMu.Lock()
	p.firstFrameDecoded = true // seek anchors directly to the requested position
	p.clk.Anchor(time.Now(), seconds)
	p.currentPTS = seconds
	p.videoPTS = seconds
	if wasPlaying {
		p.clk.Play(time.Now())
	}
	p.stateMu.Unlock()

	if wasPlaying {
		p.stateMu.Lock()
		ps := p.newPlayerSync(sess)
		err := sess.start(ps)
		p.stateMu.Unlock()
		if err != nil {
			return newError(SeekFailed, err.Error())
		}
	}
	return nil
}

// --- introspection ---

func (p *Player) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Player) LastError() (Code, string) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.lastErr == nil {
		return OK, ""
	}
	return p.lastErr.Code, p.lastErr.Message
}

// VideoInfo describes the opened video stream for the host (spec.md §6).
type VideoInfo struct {
	Width       int
	Height      int
	FPS         float64
	Duration    float64
	TotalFrames int
	PixelFormat PixelFormat
	IsLive      bool
	CodecName   string
}

func (p *Player) VideoInfo() (VideoInfo, bool) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.videoInfo == nil {
		return VideoInfo{}, false
	}
	fps := 0.0
	totalFrames := 0
	if p.videoInfo.FrameInterval > 0 {
		fps = 1.0 / p.videoInfo.FrameInterval.Seconds()
		if p.duration > 0 {
			totalFrames = int(p.duration / p.videoInfo.FrameInterval)
		}
	}
	return VideoInfo{
		Width:       p.videoInfo.Width,
		Height:      p.videoInfo.Height,
		FPS:         fps,
		Duration:    p.duration.Seconds(),
		TotalFrames: totalFrames,
		PixelFormat: p.pixelFmt,
		IsLive:      p.isLive,
		CodecName:   p.videoInfo.CodecName,
	}, true
}

// AudioInfo describes the opened audio stream for the host (spec.md §6).
type AudioInfo struct {
	SourceRate     int
	SourceChannels int
	OutputRate     int
	OutputChannels int
	CodecName      string
}

func (p *Player) AudioInfo() (AudioInfo, bool) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.audioInfo == nil {
		return AudioInfo{}, false
	}
	return AudioInfo{
		SourceRate:     p.audioInfo.SourceRate,
		SourceChannels: p.audioInfo.SourceChannels,
		OutputRate:     OutputSampleRate,
		OutputChannels: OutputChannels,
		CodecName:      p.audioInfo.CodecName,
	}, true
}

func (p *Player) Position() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.clk.Time(time.Now())
}

func (p *Player) Duration() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.duration.Seconds()
}

func (p *Player) IsLive() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.isLive
}

// --- presentation tick ---

// Update runs the presentation scheduler for one host tick (spec.md §4.5)
// and returns the number of frames promoted (0 or 1).
func (p *Player) Update(dt time.Duration) int {
	p.stateMu.Lock()
	state := p.state
	now := time.Now()
	clockNow := time.Duration(p.clk.Time(now) * float64(time.Second))
	isLive := p.isLive
	p.stateMu.Unlock()

	if state != Playing && state != Paused {
		return 0
	}

	p.queueMu.Lock()
	n := p.updateLocked(clockNow, isLive)
	videoPTS := p.videoPTS
	p.queueMu.Unlock()

	if n > 0 {
		p.stateMu.Lock()
		p.currentPTS = videoPTS
		p.stateMu.Unlock()
	}
	return n
}

// GetVideoFrame returns the current Display Frame if one is ready, clearing
// the ready flag so the same frame is not consumed twice (spec.md §4.5).
// The returned view is borrowed: valid until the next Update or Close.
func (p *Player) GetVideoFrame() (VideoFrameView, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if !p.display.ready {
		return VideoFrameView{}, false
	}
	p.display.ready = false
	return VideoFrameView{
		Data:   p.display.rgba,
		Width:  p.display.width,
		Height: p.display.height,
		Stride: p.display.stride,
		PTS:    p.display.pts,
	}, true
}

// ReadAudio drains up to len(dst) samples from the audio ring (spec.md
// §4.5/§6). Short reads are allowed; the caller must zero-fill the
// remainder.
func (p *Player) ReadAudio(dst []float32) int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return p.audioRing.ReadInto(dst)
}

// --- setters ---

func (p *Player) SetLoop(loop bool) {
	p.stateMu.Lock()
	p.loop = loop
	p.stateMu.Unlock()
}

func (p *Player) GetLoop() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.loop
}

// SetSpeed sets the playback speed. Values outside [0.25, 4.0] (spec.md §3)
// are rejected with InvalidParameter and leave the speed unchanged.
func (p *Player) SetSpeed(speed float64) error {
	if speed < 0.25 || speed > 4.0 {
		return newError(InvalidParameter, ErrInvalidParameter.Error())
	}
	p.stateMu.Lock()
	p.clk.SetSpeed(time.Now(), speed)
	p.speed = speed
	p.stateMu.Unlock()
	return nil
}

func (p *Player) GetSpeed() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.speed
}

// SetVolume sets the host-applied volume hint. Values outside [0, 1] are
// rejected with InvalidParameter and leave the volume unchanged. The ring
// buffer itself always carries raw, unvolumed samples (spec.md §9 Open
// Question, resolved): this value is informational for hosts that want to
// source their mix level from the player rather than track it separately.
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return newError(InvalidParameter, ErrInvalidParameter.Error())
	}
	p.stateMu.Lock()
	p.volume = volume
	p.stateMu.Unlock()
	return nil
}

func (p *Player) GetVolume() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.volume
}

func (p *Player) SetPixelFormat(format PixelFormat) {
	p.stateMu.Lock()
	p.pixelFmt = format
	p.stateMu.Unlock()
}

// SetHWAccelHint stores the hardware-acceleration hint. It is accepted but
// never consulted (spec.md §9 Open Question, resolved: leave it a no-op).
func (p *Player) SetHWAccelHint(hint string) {
	p.stateMu.Lock()
	p.hwAccelHint = hint
	p.stateMu.Unlock()
}

// --- callbacks (best-effort, invoked from the decoder worker) ---

func (p *Player) OnVideoFrame(cb func(data []byte, w, h, stride int, pts float64)) {
	p.stateMu.Lock()
	p.onVideoFrame = cb
	p.stateMu.Unlock()
}

func (p *Player) OnAudio(cb func(samples []float32, n, ch int, pts float64)) {
	p.stateMu.Lock()
	p.onAudio = cb
	p.stateMu.Unlock()
}

// --- worker wiring ---

func (p *Player) newPlayerSync(sess *mediaSession) *playerSync {
	return &playerSync{
		stateMu: &p.stateMu,
		queueMu: &p.queueMu,
		isPlaying: func() bool {
			p.stateMu.Lock()
			defer p.stateMu.Unlock()
			return p.state == Playing
		},
		wantLoop: func() bool {
			p.stateMu.Lock()
			defer p.stateMu.Unlock()
			return p.loop
		},
		onFirstFrame: func(now time.Time, pts time.Duration) {
			p.stateMu.Lock()
			p.firstFrameDecoded = true
			p.clk.Anchor(now, pts.Seconds())
			if p.state == Playing {
				p.clk.Play(now)
			}
			p.stateMu.Unlock()
		},
		clockTime: func(now time.Time) time.Duration {
			p.stateMu.Lock()
			defer p.stateMu.Unlock()
			return time.Duration(p.clk.Time(now) * float64(time.Second))
		},
		setEndOfFile: func() {
			p.stateMu.Lock()
			// freeze the clock so Position() stops extrapolating past the
			// end of the media, clamping to duration for late observers.
			now := time.Now()
			p.clk.Pause(now)
			if d := p.duration.Seconds(); d > 0 && p.clk.Time(now) > d {
				p.clk.Anchor(now, d)
			}
			p.state = EndOfFile
			p.stateMu.Unlock()
		},
		setError: func(err error) {
			p.stateMu.Lock()
			p.state = StateError
			p.lastErr = newError(DecodeFailed, err.Error())
			p.stateMu.Unlock()
		},
		pixelFormat: func() PixelFormat {
			p.stateMu.Lock()
			defer p.stateMu.Unlock()
			return p.pixelFmt
		},
		videoQueue: p.videoQueue,
		audioRing:  p.audioRing,
		onVideoFrame: func(data []byte, w, h, stride int, pts time.Duration) {
			p.stateMu.Lock()
			cb := p.onVideoFrame
			p.stateMu.Unlock()
			if cb != nil {
				cb(data, w, h, stride, pts.Seconds())
			}
		},
		onAudio: func(samples []float32, n int, pts time.Duration) {
			p.stateMu.Lock()
			cb := p.onAudio
			p.stateMu.Unlock()
			if cb != nil {
				cb(samples, n, OutputChannels, pts.Seconds())
			}
		},
	}
}

package mediacore

import (
	"time"

	"github.com/go-mediacore/mediacore/internal/videoqueue"
)

// displayFrame is the single RGBA buffer most recently promoted from the
// video queue (spec.md §3 "Display Frame"). It is reused in place: Update
// overwrites it, GetVideoFrame hands out a borrowed view of it.
type displayFrame struct {
	rgba   []byte
	width  int
	height int
	stride int
	pts    float64
	ready  bool
}

func (d *displayFrame) set(e *videoqueue.Entry) {
	if cap(d.rgba) < len(e.RGBA) {
		d.rgba = make([]byte, len(e.RGBA))
	}
	d.rgba = d.rgba[:len(e.RGBA)]
	copy(d.rgba, e.RGBA)
	d.width = e.Width
	d.height = e.Height
	d.stride = e.Stride
	d.pts = e.PTS
	d.ready = true
}

// VideoFrameView is the non-owning, borrowed view returned by
// Player.GetVideoFrame (spec.md §6): valid until the next Update or Close.
type VideoFrameView struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	PTS    float64
}

// updateLocked runs the presentation scheduler (C5, spec.md §4.5) for one host
// tick. It must be called with the queue lock held by the caller and
// returns the number of frames promoted this tick (0 or 1).
//
// VOD mode promotes at most one frame per call: the oldest entry, once its
// PTS is no more than vodPromoteWindow ahead of clockNow (late entries are
// promoted too). Live mode drains the whole queue,
// keeping only the newest valid entry, and promotes it unconditionally.
func (p *Player) updateLocked(clockNow time.Duration, isLive bool) int {
	if isLive {
		entry, ok := p.videoQueue.DrainToNewest()
		if !ok {
			return 0
		}
		p.videoQueue.PopOldest()
		p.display.set(entry)
		p.videoPTS = entry.PTS
		return 1
	}

	entry, ok := p.videoQueue.PeekOldest()
	if !ok {
		return 0
	}
	diff := time.Duration(entry.PTS*float64(time.Second)) - clockNow
	if diff > vodPromoteWindow {
		// still in the future; nothing to promote this tick.
		return 0
	}
	p.videoQueue.PopOldest()
	p.display.set(entry)
	p.videoPTS = entry.PTS
	return 1
}

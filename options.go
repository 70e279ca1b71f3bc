package mediacore

import (
	"strconv"
	"strings"
	"time"
)

// PixelFormat selects the output video pixel layout (spec.md §6).
type PixelFormat uint8

const (
	PixelFormatRGBA PixelFormat = iota
	PixelFormatBGRA
)

// OutputSampleRate is the fixed output audio rate spec.md §4.1 mandates
// regardless of source.
const OutputSampleRate = 48000

// OutputChannels is the fixed output channel count (stereo).
const OutputChannels = 2

// Options configures open() (spec.md §4.1). DefaultOptions returns the
// default set: network reconnect enabled with a 5s max backoff, RGBA output,
// no hardware-accel hint. The zero value differs: reconnect is disabled and
// the backoff is 0.
type Options struct {
	// NetworkReconnect enables ffmpeg's streamed reconnect-on-drop behavior
	// for network sources.
	NetworkReconnect bool
	// ReconnectMaxBackoff bounds the reconnect retry backoff.
	ReconnectMaxBackoff time.Duration
	// AllowedProtocols restricts the ffmpeg protocol whitelist. Left empty
	// unless the URL requires restriction (e.g. m3u8 per spec.md §4.1).
	AllowedProtocols []string
	PixelFormat      PixelFormat
	HWAccelHint      string
}

// DefaultOptions returns the spec.md §4.1 default option set.
func DefaultOptions() Options {
	return Options{
		NetworkReconnect:    true,
		ReconnectMaxBackoff: 5 * time.Second,
		PixelFormat:         PixelFormatRGBA,
	}
}

// m3u8ProtocolWhitelist is the allowed protocol set spec.md §4.1 mandates
// when the URL contains "m3u8".
var m3u8ProtocolWhitelist = []string{"file", "http", "https", "tcp", "tls", "crypto"}

// resolveForURL applies the URL-dependent defaults (protocol whitelist) on
// top of whatever the caller already set.
func (o Options) resolveForURL(url string) Options {
	if strings.Contains(url, "m3u8") && len(o.AllowedProtocols) == 0 {
		o.AllowedProtocols = append([]string(nil), m3u8ProtocolWhitelist...)
	}
	return o
}

// ParseOptions parses a flat "key=value" option list into Options, starting
// from DefaultOptions(). Unknown keys are ignored (forward-compatible with
// future option additions, matching the teacher's permissive "options" map
// usage). Malformed values for a known key are also ignored, leaving the
// default in place, since open-time option parsing must never itself be a
// reason to fail the whole open().
func ParseOptions(kv []string) Options {
	opts := DefaultOptions()
	for _, pair := range kv {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "reconnect":
			if b, err := strconv.ParseBool(value); err == nil {
				opts.NetworkReconnect = b
			}
		case "reconnect_max_backoff_ms":
			if ms, err := strconv.Atoi(value); err == nil {
				opts.ReconnectMaxBackoff = time.Duration(ms) * time.Millisecond
			}
		case "allowed_protocols":
			opts.AllowedProtocols = strings.Split(value, ",")
		case "pixel_format":
			switch strings.ToUpper(value) {
			case "RGBA":
				opts.PixelFormat = PixelFormatRGBA
			case "BGRA":
				opts.PixelFormat = PixelFormatBGRA
			}
		case "hw_accel_hint":
			opts.HWAccelHint = value
		}
	}
	return opts
}

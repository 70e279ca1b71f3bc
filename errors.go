package mediacore

import "errors"

// Code is the numeric error code surface of spec.md §6.
type Code int

const (
	OK               Code = 0
	InvalidPlayer    Code = -1
	OpenFailed       Code = -2
	NoVideoStream    Code = -3
	NoAudioStream    Code = -4
	CodecNotFound    Code = -5
	CodecOpenFailed  Code = -6
	DecodeFailed     Code = -7
	SeekFailed       Code = -8
	OutOfMemory      Code = -9
	NotReady         Code = -10
	InvalidParameter Code = -11
)

// String returns the code's symbolic name.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidPlayer:
		return "InvalidPlayer"
	case OpenFailed:
		return "OpenFailed"
	case NoVideoStream:
		return "NoVideoStream"
	case NoAudioStream:
		return "NoAudioStream"
	case CodecNotFound:
		return "CodecNotFound"
	case CodecOpenFailed:
		return "CodecOpenFailed"
	case DecodeFailed:
		return "DecodeFailed"
	case SeekFailed:
		return "SeekFailed"
	case OutOfMemory:
		return "OutOfMemory"
	case NotReady:
		return "NotReady"
	case InvalidParameter:
		return "InvalidParameter"
	default:
		return "Unknown"
	}
}

// Error binds a Code to an underlying message, bounded to 255 bytes per
// spec.md §3 ("last error code + message (bounded string ≤255 bytes)").
type Error struct {
	Code    Code
	Message string
}

const maxErrorMessageBytes = 255

func newError(code Code, msg string) *Error {
	if len(msg) > maxErrorMessageBytes {
		msg = msg[:maxErrorMessageBytes]
	}
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil error>"
	}
	return e.Code.String() + ": " + e.Message
}

// Sentinel constructor-time errors, mirrored on the teacher's
// ErrNoVideo/ErrNilAudioContext/ErrBadSampleRate/ErrTooManyChannels.
var (
	ErrNoVideoStream    = errors.New("source has neither a video nor an audio stream")
	ErrOpenFailed       = errors.New("could not open media source")
	ErrCodecNotFound    = errors.New("no decoder available for the stream's codec")
	ErrCodecOpenFailed  = errors.New("decoder failed to open")
	ErrSeekOnLive       = errors.New("cannot seek a live source")
	ErrNotReady         = errors.New("player is not in a state that allows this operation")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// codecErrorCode maps a mediaSession.start failure to the Code it
// represents, distinguishing ErrCodecNotFound (no decoder located at all)
// from ErrCodecOpenFailed (a decoder was found but its context failed to
// open) rather than collapsing both into one code.
func codecErrorCode(err error) Code {
	if errors.Is(err, ErrCodecNotFound) {
		return CodecNotFound
	}
	return CodecOpenFailed
}

package mediacore

import "testing"

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		OK:               "OK",
		InvalidPlayer:    "InvalidPlayer",
		OpenFailed:       "OpenFailed",
		NoVideoStream:    "NoVideoStream",
		NoAudioStream:    "NoAudioStream",
		CodecNotFound:    "CodecNotFound",
		CodecOpenFailed:  "CodecOpenFailed",
		DecodeFailed:     "DecodeFailed",
		SeekFailed:       "SeekFailed",
		OutOfMemory:      "OutOfMemory",
		NotReady:         "NotReady",
		InvalidParameter: "InvalidParameter",
		Code(42):         "Unknown",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}

func TestErrorMessageTruncation(t *testing.T) {
	long := make([]byte, maxErrorMessageBytes+50)
	for i := range long {
		long[i] = 'x'
	}
	e := newError(DecodeFailed, string(long))
	if len(e.Message) != maxErrorMessageBytes {
		t.Fatalf("len(Message) = %d, want %d", len(e.Message), maxErrorMessageBytes)
	}
}

func TestErrorFormatting(t *testing.T) {
	e := &Error{Code: SeekFailed, Message: "cannot seek a live source"}
	want := "SeekFailed: cannot seek a live source"
	if got := e.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	var nilErr *Error
	if got := nilErr.Error(); got != "<nil error>" {
		t.Fatalf("(*Error)(nil).Error() = %q, want %q", got, "<nil error>")
	}
}

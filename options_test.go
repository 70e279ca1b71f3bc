package mediacore

import "testing"

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if !o.NetworkReconnect {
		t.Fatal("NetworkReconnect should default to true")
	}
	if o.ReconnectMaxBackoff.Seconds() != 5 {
		t.Fatalf("ReconnectMaxBackoff = %v, want 5s", o.ReconnectMaxBackoff)
	}
	if o.PixelFormat != PixelFormatRGBA {
		t.Fatalf("PixelFormat = %v, want RGBA", o.PixelFormat)
	}
}

func TestResolveForURLAddsM3U8Whitelist(t *testing.T) {
	o := DefaultOptions()
	resolved := o.resolveForURL("https://example.com/live/stream.m3u8")
	if len(resolved.AllowedProtocols) == 0 {
		t.Fatal("expected AllowedProtocols to be restricted for an m3u8 URL")
	}
	want := map[string]bool{"file": true, "http": true, "https": true, "tcp": true, "tls": true, "crypto": true}
	if len(resolved.AllowedProtocols) != len(want) {
		t.Fatalf("AllowedProtocols = %v, want %v entries", resolved.AllowedProtocols, len(want))
	}
	for _, p := range resolved.AllowedProtocols {
		if !want[p] {
			t.Fatalf("unexpected protocol %q in whitelist", p)
		}
	}
}

func TestResolveForURLLeavesNonM3U8Alone(t *testing.T) {
	o := DefaultOptions()
	resolved := o.resolveForURL("https://example.com/video.mp4")
	if len(resolved.AllowedProtocols) != 0 {
		t.Fatalf("AllowedProtocols = %v, want empty for a non-m3u8 URL", resolved.AllowedProtocols)
	}
}

func TestParseOptionsKnownKeys(t *testing.T) {
	o := ParseOptions([]string{
		"reconnect=false",
		"reconnect_max_backoff_ms=2000",
		"allowed_protocols=file,http",
		"pixel_format=bgra",
		"hw_accel_hint=vaapi",
	})
	if o.NetworkReconnect {
		t.Fatal("reconnect=false should disable NetworkReconnect")
	}
	if o.ReconnectMaxBackoff.Milliseconds() != 2000 {
		t.Fatalf("ReconnectMaxBackoff = %v, want 2s", o.ReconnectMaxBackoff)
	}
	if len(o.AllowedProtocols) != 2 || o.AllowedProtocols[0] != "file" || o.AllowedProtocols[1] != "http" {
		t.Fatalf("AllowedProtocols = %v, want [file http]", o.AllowedProtocols)
	}
	if o.PixelFormat != PixelFormatBGRA {
		t.Fatalf("PixelFormat = %v, want BGRA", o.PixelFormat)
	}
	if o.HWAccelHint != "vaapi" {
		t.Fatalf("HWAccelHint = %q, want vaapi", o.HWAccelHint)
	}
}

func TestParseOptionsIgnoresUnknownAndMalformed(t *testing.T) {
	o := ParseOptions([]string{"bogus_key=1", "reconnect=not-a-bool", "novalue"})
	want := DefaultOptions()
	if o.NetworkReconnect != want.NetworkReconnect {
		t.Fatalf("malformed reconnect value should leave the default in place, got %v", o.NetworkReconnect)
	}
}

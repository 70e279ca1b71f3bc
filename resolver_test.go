package mediacore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultResolverIsIdentity(t *testing.T) {
	resolved, err := DefaultResolver(context.Background(), "https://example.com/video.mp4")
	if err != nil {
		t.Fatalf("DefaultResolver() error = %v", err)
	}
	if resolved.DirectURL != "https://example.com/video.mp4" {
		t.Fatalf("DirectURL = %q, want passthrough of the input", resolved.DirectURL)
	}
}

func TestSubprocessResolverParsesJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test script is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "resolve.sh")
	body := "#!/bin/sh\necho '{\"direct_url\":\"https://cdn.example.com/direct.m3u8\",\"is_live\":true}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	resolver := SubprocessResolver(script)
	resolved, err := resolver(context.Background(), "https://thirdparty.example.com/watch?id=1")
	if err != nil {
		t.Fatalf("resolver() error = %v", err)
	}
	if resolved.DirectURL != "https://cdn.example.com/direct.m3u8" {
		t.Fatalf("DirectURL = %q, want the resolved direct URL", resolved.DirectURL)
	}
	if !resolved.Metadata.IsLive {
		t.Fatal("Metadata.IsLive = false, want true")
	}
}

func TestSubprocessResolverRejectsEmptyURL(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test script is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "resolve.sh")
	body := "#!/bin/sh\necho '{\"direct_url\":\"\"}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	resolver := SubprocessResolver(script)
	if _, err := resolver(context.Background(), "https://thirdparty.example.com/watch?id=1"); err == nil {
		t.Fatal("resolver() should fail when the subprocess returns an empty direct_url")
	}
}

package mediacore

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"
)

// Resolved is what a Resolver returns: a direct, core-consumable URL plus
// best-effort metadata. The core never consumes anything but DirectURL;
// Metadata is informational only.
type Resolved struct {
	DirectURL string
	Metadata  ResolvedMetadata
}

// ResolvedMetadata carries whatever a resolver could determine ahead of
// open() actually probing the stream.
type ResolvedMetadata struct {
	Title  string
	Width  int
	Height int
	Format string
	IsLive bool
}

// Resolver turns a possibly third-party-site URL into a direct media URL.
// spec.md §9 collapses the source's resolver interface hierarchy into this
// single function type: the core only ever consumes the result, never the
// resolution strategy itself.
type Resolver func(ctx context.Context, url string) (Resolved, error)

// DefaultResolver treats url as already direct: the core's open() contract
// (spec.md §6) states it "accepts only direct URLs", so resolution is
// something the host does before calling open(), and this is the identity
// strategy used when no external resolver is configured.
func DefaultResolver(_ context.Context, url string) (Resolved, error) {
	return Resolved{DirectURL: url}, nil
}

// SubprocessResolver builds a Resolver that shells out to an external
// program (spec.md §6's "URL resolver subprocess" collaborator). The
// program receives args followed by the URL as its last argument, and is
// expected to print a single flat JSON object on stdout with the keys
// "direct_url", "title", "width", "height", "format" and "is_live". An
// empty "direct_url" is reported as ErrOpenFailed.
func SubprocessResolver(program string, args ...string) Resolver {
	return func(ctx context.Context, url string) (Resolved, error) {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultResolveTimeout)
			defer cancel()
		}

		cmdArgs := append(append([]string(nil), args...), url)
		cmd := exec.CommandContext(ctx, program, cmdArgs...)
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			return Resolved{}, err
		}

		var payload struct {
			DirectURL string `json:"direct_url"`
			Title     string `json:"title"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			Format    string `json:"format"`
			IsLive    bool   `json:"is_live"`
		}
		if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &payload); err != nil {
			return Resolved{}, err
		}
		if strings.TrimSpace(payload.DirectURL) == "" {
			return Resolved{}, ErrOpenFailed
		}
		return Resolved{
			DirectURL: payload.DirectURL,
			Metadata: ResolvedMetadata{
				Title:  payload.Title,
				Width:  payload.Width,
				Height: payload.Height,
				Format: payload.Format,
				IsLive: payload.IsLive,
			},
		}, nil
	}
}

// defaultResolveTimeout bounds how long a subprocess resolver is allowed to
// run before the caller should give up.
const defaultResolveTimeout = 15 * time.Second

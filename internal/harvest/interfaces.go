package harvest

import (
	"context"
	"time"
)

// Queue provides bounded enqueue/dequeue semantics for accepted jobs. A full
// queue exerts backpressure on the submitter.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	TryEnqueue(task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID JobID
	URL   string
}

// FetchResult is the result returned by a Fetcher implementation.
type FetchResult struct {
	URL           string
	FinalURL      string
	StatusCode    int
	ContentType   string
	Body          []byte
	RedirectCount int
	Duration      time.Duration
}

// Fetcher downloads a URL, enforcing timeouts, a redirect limit, a response
// size cap, and content-type classification.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// ExtractedContent is the sanitized primary content of a page.
type ExtractedContent struct {
	Title       string
	ContentHTML string
}

// Extractor determines the primary textual content of an HTML document,
// discarding navigation, script, and style elements.
type Extractor interface {
	Extract(html string) (ExtractedContent, error)
}

// Conversion is the markdown conversion result plus extracted links.
type Conversion struct {
	Markdown       string
	Links          []Link
	LinksTruncated bool
}

// Converter transforms sanitized HTML into markdown while extracting outbound
// links resolved against the final fetch URL.
type Converter interface {
	Convert(html string, baseURL string) (Conversion, error)
}

// TokenCounter computes a deterministic token count under a fixed, named
// counting scheme.
type TokenCounter interface {
	Scheme() string
	Count(text string) int
}

// DocumentWriter persists a document durably. Implementations must never
// leave a partially written file visible under the final name.
type DocumentWriter interface {
	Write(ctx context.Context, filename string, content string) (string, error)
}

// Publisher pushes job/session completion notifications to an external broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator mints opaque identifiers for session runs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for deterministic filenames.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// MsgSink accepts messages bound for the session reducer. Sends are lossless;
// per-job ordering is preserved by the single consuming loop.
type MsgSink interface {
	Send(msg Msg)
}

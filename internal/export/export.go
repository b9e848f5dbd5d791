// Package export builds the final concatenated document and its manifest
// from terminal jobs. Builders are pure functions over job copies: byte
// identical output for identical input.
package export

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const (
	docStart      = "===== DOC START ====="
	docEnd        = "===== DOC END ====="
	markdownBreak = "----- MARKDOWN -----"
)

// Options configures a build.
type Options struct {
	// TokenScheme is recorded in the manifest.
	TokenScheme string
	// Normalizer deduplicates successful jobs by final URL. First arrival
	// wins.
	Normalizer harvest.URLNormalizer
}

// Manifest summarizes the run that produced an export.
type Manifest struct {
	GeneratedBy string         `json:"generated_by"`
	TokenScheme string         `json:"token_scheme,omitempty"`
	Documents   int            `json:"documents"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Cancelled   int            `json:"cancelled"`
	Duplicates  int            `json:"duplicates_in_export_skipped"`
	TotalTokens int64          `json:"total_tokens"`
	TotalBytes  int64          `json:"total_bytes"`
	Failures    map[string]int `json:"failures_by_kind,omitempty"`
}

// Build produces the export document and manifest JSON for a terminal job
// list. Jobs must be passed in arrival order.
func Build(jobs []harvest.Job, opts Options) (content string, manifest string) {
	if opts.Normalizer == nil {
		opts.Normalizer = harvest.DefaultNormalizer{}
	}

	m := Manifest{
		GeneratedBy: "harvester",
		TokenScheme: opts.TokenScheme,
		Failures:    make(map[string]int),
	}

	seen := make(map[string]struct{})
	var blocks []string
	for _, job := range jobs {
		switch job.Outcome.Kind {
		case harvest.OutcomeFailed:
			m.Failed++
			m.Failures[string(job.Outcome.Failure)]++
			continue
		case harvest.OutcomeCancelled:
			m.Cancelled++
			continue
		case harvest.OutcomeSuccess:
		default:
			continue
		}
		m.Succeeded++

		key := exportKey(job, opts.Normalizer)
		if _, dup := seen[key]; dup {
			m.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		// Jobs restored from an earlier run carry no body; their documents
		// already exist on disk and are not re-exported.
		if job.Outcome.Body == "" {
			continue
		}
		blocks = append(blocks, renderBlock(job))
		m.Documents++
		m.TotalTokens += int64(job.Outcome.Tokens)
		m.TotalBytes += job.Outcome.Bytes
	}

	if len(m.Failures) == 0 {
		m.Failures = nil
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		// Manifest is a plain struct; marshalling cannot fail at runtime.
		raw = []byte("{}")
	}
	return strings.Join(blocks, "\n"), string(raw) + "\n"
}


func exportKey(job harvest.Job, n harvest.URLNormalizer) string {
	final := job.FinalURL
	if final == "" {
		final = job.Outcome.FinalURL
	}
	if final == "" {
		return job.NormalizedURL
	}
	if normalized, err := n.Normalize(final); err == nil {
		return normalized
	}
	return final
}

func renderBlock(job harvest.Job) string {
	var b strings.Builder
	b.WriteString(docStart)
	b.WriteByte('\n')
	b.WriteString("url: ")
	final := job.FinalURL
	if final == "" {
		final = job.URL
	}
	b.WriteString(final)
	b.WriteByte('\n')
	if job.Outcome.Title != "" {
		b.WriteString("title: ")
		b.WriteString(job.Outcome.Title)
		b.WriteByte('\n')
	}
	b.WriteString("tokens: ")
	b.WriteString(strconv.Itoa(job.Outcome.Tokens))
	b.WriteByte('\n')
	b.WriteString("fetched_utc: ")
	b.WriteString(job.Outcome.FetchedAt.UTC().Format(time.RFC3339))
	b.WriteByte('\n')
	b.WriteString(markdownBreak)
	b.WriteByte('\n')
	b.WriteString(job.Outcome.Body)
	if !strings.HasSuffix(job.Outcome.Body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(docEnd)
	b.WriteByte('\n')
	return b.String()
}

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func submit(s *Session, urls ...string) []harvest.Effect {
	return s.Update(harvest.UrlsSubmitted{Text: strings.Join(urls, "\n"), Now: testNow})
}

func completeSuccess(s *Session, id harvest.JobID, url string) []harvest.Effect {
	out := harvest.SuccessOutcome(url, "Title "+url, 3, 42)
	out.Body = "body for " + url
	out.FetchedAt = testNow
	return s.Update(harvest.JobDone{JobID: id, Outcome: out, Now: testNow})
}

func enqueueEffects(effects []harvest.Effect) []harvest.EnqueueJob {
	var out []harvest.EnqueueJob
	for _, e := range effects {
		if eq, ok := e.(harvest.EnqueueJob); ok {
			out = append(out, eq)
		}
	}
	return out
}

func TestIdleSubmissionStartsSession(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	effects := submit(s, "http://a.test/x", "http://b.test/y")

	require.Equal(t, StateRunning, s.State())
	require.IsType(t, harvest.StartSession{}, effects[0])

	enqueues := enqueueEffects(effects)
	require.Len(t, enqueues, 2)
	require.Equal(t, harvest.JobID(1), enqueues[0].JobID)
	require.Equal(t, "http://a.test/x", enqueues[0].URL)
	require.Equal(t, harvest.JobID(2), enqueues[1].JobID)
}

func TestDuplicateSubmissionSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	first := submit(s, "http://a.test/x")
	require.Len(t, enqueueEffects(first), 1)

	second := submit(s, "http://a.test/x")
	require.Empty(t, second)

	view := s.View()
	require.Len(t, view.Jobs, 1)
	require.Equal(t, 1, view.Counters.DuplicatesSkipped)
}

func TestNormalizedDuplicatesCollapse(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	effects := submit(s, "http://a.test/x", "HTTP://A.TEST:80/x#frag")

	require.Len(t, enqueueEffects(effects), 1)
	require.Equal(t, 1, s.View().Counters.DuplicatesSkipped)
}

func TestInvalidURLsSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	effects := submit(s, "not a url", "http://a.test/ok")

	require.Len(t, enqueueEffects(effects), 1)
	view := s.View()
	require.Equal(t, 1, view.Counters.InvalidSkipped)
	require.Equal(t, 1, view.Counters.Accepted)
}

func TestEmptySubmissionIgnored(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	effects := s.Update(harvest.UrlsSubmitted{Text: "   \n\n  ", Now: testNow})

	require.Empty(t, effects)
	require.Equal(t, StateIdle, s.State())
}

func TestFinishingBlocksIntake(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	s.Update(harvest.StopRequested{Now: testNow})
	require.Equal(t, StateFinishing, s.State())

	before := s.View()
	effects := submit(s, "http://b.test/y")
	after := s.View()

	require.Empty(t, effects)
	require.Equal(t, before, after)
}

func TestStopEmitsDrainCancel(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	effects := s.Update(harvest.StopRequested{Now: testNow})

	require.Len(t, effects, 1)
	cancel, ok := effects[0].(harvest.CancelSession)
	require.True(t, ok)
	require.Equal(t, harvest.PolicyDrain, cancel.Policy)
}

func TestStopWhileIdleIgnored(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	require.Empty(t, s.Update(harvest.StopRequested{Now: testNow}))
	require.Equal(t, StateIdle, s.State())
}

func TestDrainCompletesToFinished(t *testing.T) {
	t.Parallel()

	s := New(Config{ExportFilename: "export.txt", ManifestFilename: "manifest.json"})
	submit(s, "http://a.test/x", "http://b.test/y")
	s.Update(harvest.StopRequested{Now: testNow})

	require.Empty(t, completeSuccess(s, 1, "http://a.test/x"))
	require.Equal(t, StateFinishing, s.State())

	effects := completeSuccess(s, 2, "http://b.test/y")
	require.Equal(t, StateFinished, s.State())
	require.Len(t, effects, 2)

	write, ok := effects[0].(harvest.WriteExportFile)
	require.True(t, ok)
	require.Equal(t, "export.txt", write.Path)
	require.Equal(t, 2, strings.Count(write.Content, "===== DOC START ====="))

	manifest, ok := effects[1].(harvest.WriteManifest)
	require.True(t, ok)
	require.Contains(t, manifest.Content, "\"documents\": 2")
}

func TestStopWithAllJobsTerminalFinishesImmediately(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	completeSuccess(s, 1, "http://a.test/x")

	effects := s.Update(harvest.StopRequested{Now: testNow})
	require.Equal(t, StateFinished, s.State())

	require.IsType(t, harvest.CancelSession{}, effects[0])
	require.IsType(t, harvest.WriteExportFile{}, effects[1])
	require.IsType(t, harvest.WriteManifest{}, effects[2])
}

func TestConcreteThreeURLScenario(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	effects := submit(s, "http://a.test/x", "http://a.test/x", "http://b.test/y")

	require.Equal(t, StateRunning, s.State())
	require.Len(t, enqueueEffects(effects), 2)
	view := s.View()
	require.Len(t, view.Jobs, 2)
	require.Equal(t, 1, view.Counters.DuplicatesSkipped)

	completeSuccess(s, 1, "http://a.test/x")
	completeSuccess(s, 2, "http://b.test/y")
	final := s.Update(harvest.StopRequested{Now: testNow})

	require.Equal(t, StateFinished, s.State())
	var exportContent string
	for _, e := range final {
		if w, ok := e.(harvest.WriteExportFile); ok {
			exportContent = w.Content
		}
	}
	require.Equal(t, 2, strings.Count(exportContent, "===== DOC START ====="))
	require.Equal(t, 2, strings.Count(exportContent, "===== DOC END ====="))
}

func TestProgressUpdatesNonTerminalJobs(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")

	s.Update(harvest.JobProgress{JobID: 1, Stage: harvest.StageDownloading, Bytes: 1024, Tokens: -1})
	view := s.View()
	require.Equal(t, harvest.StageDownloading, view.Jobs[0].Stage)
	require.Equal(t, int64(1024), view.Jobs[0].Bytes)
	require.Zero(t, view.Jobs[0].Tokens)

	completeSuccess(s, 1, "http://a.test/x")
	s.Update(harvest.JobProgress{JobID: 1, Stage: harvest.StageDownloading, Bytes: -1, Tokens: -1})
	require.Equal(t, harvest.StageDone, s.View().Jobs[0].Stage)
}

func TestProgressStoresContentPreview(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")

	s.Update(harvest.JobProgress{JobID: 1, Stage: harvest.StageTokenizing, Bytes: -1, Tokens: -1,
		Preview: "# converted page"})
	require.Equal(t, "# converted page", s.View().Jobs[0].Preview)

	// A later progress message without a preview keeps the stored one.
	s.Update(harvest.JobProgress{JobID: 1, Stage: harvest.StageWriting, Bytes: -1, Tokens: 3})
	require.Equal(t, "# converted page", s.View().Jobs[0].Preview)
}

func TestDuplicateJobDoneIgnored(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	completeSuccess(s, 1, "http://a.test/x")
	completeSuccess(s, 1, "http://a.test/x")

	require.Equal(t, 1, s.View().Counters.Succeeded)
}

func TestFailedAndCancelledCounted(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x", "http://b.test/y")
	s.Update(harvest.JobDone{
		JobID:   1,
		Outcome: harvest.FailedOutcome(harvest.FailHTTPStatus, "status 404"),
		Now:     testNow,
	})
	s.Update(harvest.JobDone{JobID: 2, Outcome: harvest.CancelledOutcome(), Now: testNow})

	view := s.View()
	require.Equal(t, 1, view.Counters.Failed)
	require.Equal(t, 1, view.Counters.Cancelled)
	require.Equal(t, 0, view.Counters.Succeeded)
}

func TestTickClearsDirty(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	require.True(t, s.Dirty())

	s.Update(harvest.Tick{Now: testNow})
	require.False(t, s.Dirty())
	require.Equal(t, StateRunning, s.State())
}

func TestRestartDisabledByDefault(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	completeSuccess(s, 1, "http://a.test/x")
	s.Update(harvest.StopRequested{Now: testNow})
	require.Equal(t, StateFinished, s.State())

	effects := submit(s, "http://b.test/y")
	require.Empty(t, effects)
	require.Equal(t, StateFinished, s.State())
	require.Len(t, s.View().Jobs, 1)
}

func TestRestartEnabledReentersRunning(t *testing.T) {
	t.Parallel()

	s := New(Config{AllowRestart: true})
	submit(s, "http://a.test/x")
	completeSuccess(s, 1, "http://a.test/x")
	s.Update(harvest.StopRequested{Now: testNow})
	require.Equal(t, StateFinished, s.State())

	effects := submit(s, "http://b.test/y", "http://a.test/x")
	require.Equal(t, StateRunning, s.State())
	require.IsType(t, harvest.StartSession{}, effects[0])

	enqueues := enqueueEffects(effects)
	require.Len(t, enqueues, 1)
	require.Equal(t, harvest.JobID(2), enqueues[0].JobID)

	view := s.View()
	require.Equal(t, 1, view.Counters.Succeeded)
	require.Equal(t, 1, view.Counters.DuplicatesSkipped)
}

func TestRestoreSeedsDeduplication(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	s.Update(harvest.RestoreCompletedJobs{Jobs: []harvest.CompletedJobSnapshot{
		{
			URL:      "http://a.test/x",
			FinalURL: "http://a.test/x",
			Title:    "Old",
			Tokens:   7,
			Bytes:    99,
			Links:    []string{"http://a.test/next"},
			Filename: "old--deadbeef.md",
		},
	}})

	view := s.View()
	require.Equal(t, StateIdle, s.State())
	require.Equal(t, 1, view.Counters.Restored)
	require.Equal(t, int64(7), view.Counters.TotalTokens)

	effects := submit(s, "http://a.test/x", "http://b.test/y")
	enqueues := enqueueEffects(effects)
	require.Len(t, enqueues, 1)
	require.Equal(t, "http://b.test/y", enqueues[0].URL)
	require.Equal(t, 1, s.View().Counters.DuplicatesSkipped)
}

func TestRestoreIgnoredAfterStart(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x")
	s.Update(harvest.RestoreCompletedJobs{Jobs: []harvest.CompletedJobSnapshot{
		{URL: "http://b.test/y"},
	}})

	require.Len(t, s.View().Jobs, 1)
}

func TestCompletedSnapshotsSuccessOnly(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	submit(s, "http://a.test/x", "http://b.test/y")
	completeSuccess(s, 1, "http://a.test/x")
	s.Update(harvest.JobDone{
		JobID:   2,
		Outcome: harvest.FailedOutcome(harvest.FailNetwork, "refused"),
		Now:     testNow,
	})

	snaps := s.CompletedSnapshots()
	require.Len(t, snaps, 1)
	require.Equal(t, "http://a.test/x", snaps[0].URL)
	require.Equal(t, 3, snaps[0].Tokens)
}

func TestSubmissionCapCountsOverflowAsSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxURLsPerSubmit: 2})
	effects := submit(s, "http://a.test/1", "http://a.test/2", "http://a.test/3")

	require.Len(t, enqueueEffects(effects), 2)
	require.Equal(t, 1, s.View().Counters.InvalidSkipped)
}

package snapshot

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

func TestPostgresStoreSaveReplacesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "harvest_snapshots")
	require.NoError(t, err)

	jobs := []harvest.CompletedJobSnapshot{
		{
			URL:        "http://a.test/x",
			FinalURL:   "http://a.test/x",
			Title:      "Alpha",
			Tokens:     12,
			Bytes:      345,
			Links:      []string{"http://a.test/next"},
			Filename:   "Alpha--1a2b3c4d.md",
			FetchedUTC: "2026-08-01T12:00:00Z",
		},
	}

	mock.ExpectExec("DELETE FROM harvest_snapshots").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO harvest_snapshots").
		WithArgs(
			0,
			jobs[0].URL,
			jobs[0].FinalURL,
			jobs[0].Title,
			jobs[0].Tokens,
			jobs[0].Bytes,
			[]byte(`["http://a.test/next"]`),
			jobs[0].Filename,
			jobs[0].FetchedUTC,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), jobs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadOrdered(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "harvest_snapshots")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"url", "final_url", "title", "tokens", "bytes", "links", "filename", "fetched_utc",
	}).
		AddRow("http://a.test/x", "http://a.test/x", "Alpha", 12, int64(345),
			[]byte(`["http://a.test/next"]`), "Alpha--1a2b3c4d.md", "2026-08-01T12:00:00Z").
		AddRow("http://b.test/y", "", "", 7, int64(99), []byte(nil), "", "")

	mock.ExpectQuery("SELECT url, final_url, title, tokens, bytes, links, filename, fetched_utc").
		WillReturnRows(rows)

	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "http://a.test/x", jobs[0].URL)
	require.Equal(t, []string{"http://a.test/next"}, jobs[0].Links)
	require.Equal(t, "http://b.test/y", jobs[1].URL)
	require.Empty(t, jobs[1].Links)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(mock, "bad;table")
	require.Error(t, err)
}

func TestNoopStore(t *testing.T) {
	t.Parallel()

	store := NoopStore{}
	require.NoError(t, store.Save(context.Background(), sampleJobs()))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, loaded)
}

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGatherSubmissionFromArgs(t *testing.T) {
	t.Parallel()

	text, err := gatherSubmission([]string{"http://a.test/", "http://b.test/"}, "", strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, "http://a.test/\nhttp://b.test/", text)
}

func TestGatherSubmissionFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a.test/\nhttp://b.test/\n"), 0o600))

	text, err := gatherSubmission(nil, path, strings.NewReader("ignored"))
	require.NoError(t, err)
	require.Contains(t, text, "http://a.test/")
	require.Contains(t, text, "http://b.test/")
}

func TestGatherSubmissionFromStdin(t *testing.T) {
	t.Parallel()

	text, err := gatherSubmission(nil, "", strings.NewReader("http://stdin.test/\n"))
	require.NoError(t, err)
	require.Contains(t, text, "http://stdin.test/")
}

func TestGatherSubmissionMissingFile(t *testing.T) {
	t.Parallel()

	_, err := gatherSubmission(nil, filepath.Join(t.TempDir(), "absent.txt"), strings.NewReader(""))
	require.Error(t, err)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["run"])
}

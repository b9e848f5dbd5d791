package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWhitespaceCounter(t *testing.T) {
	t.Parallel()

	c := NewWhitespace()
	require.Equal(t, WhitespaceScheme, c.Scheme())

	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"only whitespace", "  \n\t  ", 0},
		{"single word", "hello", 1},
		{"mixed whitespace", "one\ttwo\nthree  four", 4},
		{"markdown", "# Title\n\nSome **bold** text.", 5},
		{"unicode", "héllo wörld", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, c.Count(tc.text))
		})
	}
}

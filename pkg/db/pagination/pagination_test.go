package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	encoded, err := EncodeCursor(Cursor{CreatedAt: "2026-01-02T15:04:05Z", ID: "42"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, "2026-01-02T15:04:05Z", decoded.CreatedAt)
	require.Equal(t, "42", decoded.ID)
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	require.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(s string) string { return s }

	rows, page := BuildCursorPageInfo([]string{"a", "b", "c"}, 2, extract)
	require.Equal(t, []string{"a", "b"}, rows)
	require.True(t, page.HasMore)
	require.Equal(t, "b", page.NextCursor)

	rows, page = BuildCursorPageInfo([]string{"a", "b"}, 2, extract)
	require.Equal(t, []string{"a", "b"}, rows)
	require.False(t, page.HasMore)
	require.Equal(t, "b", page.NextCursor)

	rows, page = BuildCursorPageInfo([]string{}, 2, extract)
	require.Empty(t, rows)
	require.False(t, page.HasMore)
	require.Empty(t, page.NextCursor)
}

package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("zero-padded suffix", func(t *testing.T) {
		n, err := Parse("CAPA-2026-007", "CAPA-2026-")
		require.NoError(t, err)
		require.Equal(t, 7, n)
	})

	t.Run("suffix wider than padding", func(t *testing.T) {
		n, err := Parse("CAPA-2026-1234", "CAPA-2026-")
		require.NoError(t, err)
		require.Equal(t, 1234, n)
	})

	t.Run("prefix containing no delimiter", func(t *testing.T) {
		n, err := Parse("NCR042", "NCR")
		require.NoError(t, err)
		require.Equal(t, 42, n)
	})

	t.Run("wrong prefix is malformed", func(t *testing.T) {
		_, err := Parse("NCR-042", "CAPA-")
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("non-numeric suffix is malformed", func(t *testing.T) {
		_, err := Parse("CAPA-2026-7a", "CAPA-2026-")
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("negative suffix is malformed", func(t *testing.T) {
		_, err := Parse("CAPA--3", "CAPA-")
		require.ErrorIs(t, err, ErrMalformedValue)
	})
}

func TestFormat(t *testing.T) {
	require.Equal(t, "CAPA-2026-001", Format("CAPA-2026-", 1, 3))
	require.Equal(t, "CAPA-2026-1000", Format("CAPA-2026-", 1000, 3))
	require.Equal(t, "NCR1", Format("NCR", 1, 0))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, n := range []int{1, 9, 10, 999, 1000} {
		got, err := Parse(Format("CAPA-", n, 3), "CAPA-")
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}

func TestSeriesValidate(t *testing.T) {
	t.Run("valid identifiers", func(t *testing.T) {
		s := Series{Table: "capas", Column: "number", TenantColumn: "tenant_id"}
		require.NoError(t, s.Validate())
	})

	t.Run("injection attempt rejected", func(t *testing.T) {
		s := Series{Table: "capas; DROP TABLE capas", Column: "number", TenantColumn: "tenant_id"}
		require.Error(t, s.Validate())
	})

	t.Run("empty column rejected", func(t *testing.T) {
		s := Series{Table: "capas", Column: "", TenantColumn: "tenant_id"}
		require.Error(t, s.Validate())
	})
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `CAPA\_2026\%`, escapeLike("CAPA_2026%"))
	require.Equal(t, `plain-prefix-`, escapeLike("plain-prefix-"))
}

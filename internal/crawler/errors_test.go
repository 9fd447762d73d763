package crawler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailureUnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := fmt.Errorf("fetch page: %w", &Failure{
		Kind:       ErrTransport,
		Op:         "fetch",
		URL:        "https://example.com/api",
		StatusCode: 502,
		Err:        cause,
	})

	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrParse)
	require.Equal(t, ErrTransport, KindOf(err))
	require.Contains(t, err.Error(), "status=502")
	require.Contains(t, err.Error(), "url=https://example.com/api")

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, "fetch", failure.Op)
}

func TestKindOfUnknown(t *testing.T) {
	t.Parallel()

	require.Nil(t, KindOf(errors.New("plain")))
}

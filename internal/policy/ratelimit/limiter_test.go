package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitsBetweenTokens(t *testing.T) {
	t.Parallel()

	// 10 requests per second with burst 1 means ~100ms between requests.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://np-anotice-stock.eastmoney.com/api/security/ann"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://np-anotice-stock.eastmoney.com/api/security/ann?page_index=2"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterIsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://a.example/x"))
	require.NoError(t, l.Wait(ctx, "https://b.example/x"))
	require.Error(t, l.Wait(ctx, "https://a.example/y"))
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "https://example.com"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

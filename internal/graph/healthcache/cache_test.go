package healthcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/graph"
	id "custodia/pkg/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// unreachableClient returns a client whose every command fails with a dial
// error, exercising the fall-through-to-compute path.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestReportComputesWhenCacheUnavailable(t *testing.T) {
	computed := 0
	cache := New(unreachableClient(), time.Minute,
		func(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
			computed++
			return &graph.HealthReport{TenantID: tenantID}, nil
		}, discard())

	tenantID := id.NewTenantID()
	report, err := cache.Report(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, report.TenantID)
	assert.Equal(t, 1, computed)

	// Cache writes fail silently, so a second read computes again.
	_, err = cache.Report(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, computed)
}

func TestReportWithNilClientAlwaysComputes(t *testing.T) {
	computed := 0
	cache := New(nil, time.Minute,
		func(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
			computed++
			return &graph.HealthReport{TenantID: tenantID}, nil
		}, discard())

	for range 3 {
		_, err := cache.Report(context.Background(), id.NewTenantID())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, computed)
}

func TestReportPropagatesComputeError(t *testing.T) {
	boom := errors.New("scan failed")
	cache := New(nil, time.Minute,
		func(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
			return nil, boom
		}, discard())

	_, err := cache.Report(context.Background(), id.NewTenantID())
	assert.ErrorIs(t, err, boom)
}

func TestInvalidateToleratesMissingClient(t *testing.T) {
	cache := New(nil, time.Minute, nil, discard())
	cache.Invalidate(context.Background(), id.NewTenantID())

	cache = New(unreachableClient(), time.Minute, nil, discard())
	cache.Invalidate(context.Background(), id.NewTenantID())
}

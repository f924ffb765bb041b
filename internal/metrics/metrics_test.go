package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, referenceCacheTotal)
	require.NotNil(t, referenceFetchTotal)
	require.NotNil(t, ingestionsTotal)
	require.NotNil(t, notificationsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()

	hits := testutil.ToFloat64(referenceCacheTotal.WithLabelValues("hit"))
	ObserveCacheLookup(true)
	require.Equal(t, hits+1, testutil.ToFloat64(referenceCacheTotal.WithLabelValues("hit")))

	fetches := testutil.ToFloat64(referenceFetchTotal.WithLabelValues("cite", "error"))
	ObserveFetch("cite", "error", 20*time.Millisecond)
	require.Equal(t, fetches+1, testutil.ToFloat64(referenceFetchTotal.WithLabelValues("cite", "error")))
	require.Positive(t, testutil.CollectAndCount(referenceFetchDuration))

	created := testutil.ToFloat64(ingestionsTotal.WithLabelValues("create", "ok"))
	ObserveIngestion("create", "ok")
	require.Equal(t, created+1, testutil.ToFloat64(ingestionsTotal.WithLabelValues("create", "ok")))

	dropped := testutil.ToFloat64(notificationsTotal.WithLabelValues("dropped"))
	ObserveNotification("dropped")
	require.Equal(t, dropped+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("dropped")))

	SetQueueDepth(3)
	require.Equal(t, float64(3), testutil.ToFloat64(notificationQueueDepth))
}

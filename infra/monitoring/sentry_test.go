package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/config"
	coremon "github.com/kilianp07/busalloc/core/monitoring"
)

func TestEmptyDSNIsNop(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestCaptureExceptionTags(t *testing.T) {
	var mu sync.Mutex
	var got []*sentry.Event
	m, err := newSentryMonitor(sentry.ClientOptions{
		Dsn: "https://public@o0.ingest.sentry.io/0",
		BeforeSend: func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("panic: ranker exploded"), map[string]string{"stop_id": "F001", "decision_id": ""})
	m.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "F001", got[0].Tags["stop_id"])
	_, ok := got[0].Tags["decision_id"]
	assert.False(t, ok)
}

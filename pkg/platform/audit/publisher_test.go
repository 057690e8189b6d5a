package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncWriter serializes writes so the background drain goroutine and the
// test can share one buffer.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestLogPublisherWritesEvent(t *testing.T) {
	out := &syncWriter{}
	logger := slog.New(slog.NewJSONHandler(out, nil))
	pub := NewLogPublisher(logger)

	pub.RecordSecurityEvent(context.Background(), Event{
		Type:     EventRateLimitExceeded,
		Severity: SeverityMedium,
		Identity: "user-42",
		Origin:   Origin{IP: "203.0.113.9"},
		Metadata: map[string]any{"tier": "authenticated"},
	})
	pub.Close()

	logged := out.String()
	assert.Contains(t, logged, `"event":"rate_limit_exceeded"`)
	assert.Contains(t, logged, `"severity":"medium"`)
	assert.Contains(t, logged, `"identity":"user-42"`)
	assert.Contains(t, logged, `"log_type":"audit"`)
	assert.Contains(t, logged, `"origin_ip":"203.0.113.0"`)
	assert.NotContains(t, logged, "203.0.113.9")
	assert.Contains(t, logged, `"tier":"authenticated"`)
}

func TestLogPublisherNeverBlocks(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&syncWriter{}, nil))
	pub := NewLogPublisher(logger, WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			pub.RecordSecurityEvent(context.Background(), Event{Type: EventLimiterDegraded, Severity: SeverityLow})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordSecurityEvent blocked the caller")
	}
	pub.Close()
}

func TestDeviceLabel(t *testing.T) {
	require.Equal(t, "", DeviceLabel(""))

	label := DeviceLabel("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.True(t, strings.Contains(label, " on "))
	assert.Contains(t, label, "Chrome")
}

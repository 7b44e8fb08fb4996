package timing

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTimeReportsLabel(t *testing.T) {
	var out bytes.Buffer
	var observed time.Duration
	timer := New(&out, zap.NewNop(), func(label string, elapsed time.Duration) {
		assert.Equal(t, "topic bind", label)
		observed = elapsed
	})

	elapsed, err := timer.Time("topic bind", func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Equal(t, elapsed, observed)
	assert.Equal(t, "topic bind: "+elapsed.String()+"\n", out.String())
}

func TestTimeNonNegative(t *testing.T) {
	var out bytes.Buffer
	timer := New(&out, zap.NewNop(), nil)

	elapsed, err := timer.Time("direct bind", func() error { return nil })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
	assert.True(t, strings.HasPrefix(out.String(), "direct bind: "))
}

func TestTimePropagatesError(t *testing.T) {
	var out bytes.Buffer
	core, logs := observer.New(zapcore.WarnLevel)
	called := false
	timer := New(&out, zap.New(core), func(string, time.Duration) { called = true })

	boom := errors.New("boom")
	_, err := timer.Time("topic bind", func() error { return boom })

	assert.Same(t, boom, err)
	assert.Empty(t, out.String())
	assert.False(t, called)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "topic bind", logs.All()[0].ContextMap()["label"])
}

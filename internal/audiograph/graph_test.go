package audiograph

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/storyreel/internal/audio"
)

type collector struct {
	mu      sync.Mutex
	samples [][2]float64
	err     error
}

func (c *collector) WriteSamples(s [][2]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.samples = append(c.samples, s...)
	return nil
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func (c *collector) First() [2]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples[0]
}

// ramp returns a 1 kHz mono buffer of n samples valued i/n.
func ramp(t *testing.T, n int) *audio.SampleBuffer {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i) / float32(n)
	}
	buf, err := audio.NewSampleBuffer(1000, samples)
	require.NoError(t, err)
	return buf
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestContext_CurrentTime(t *testing.T) {
	mock := clock.NewMock()
	ctx := Open(WithClock(mock))
	defer ctx.Close()

	assert.Equal(t, 0.0, ctx.CurrentTime())
	mock.Add(2500 * time.Millisecond)
	assert.InDelta(t, 2.5, ctx.CurrentTime(), 1e-9)
}

func TestSource_PlaysToNaturalEnd(t *testing.T) {
	mock := clock.NewMock()
	ctx := Open(WithClock(mock))
	defer ctx.Close()

	dest := &collector{}
	src, err := ctx.NewSource(ramp(t, 1000), dest)
	require.NoError(t, err)
	require.NoError(t, src.Start(0))

	mock.Add(500 * time.Millisecond)
	assert.Eventually(t, func() bool { return dest.Len() >= 500 }, time.Second, time.Millisecond)
	assert.False(t, closed(src.Ended()))

	mock.Add(600 * time.Millisecond)
	assert.Eventually(t, func() bool { return closed(src.Ended()) }, time.Second, time.Millisecond)
	<-src.Done()

	assert.Equal(t, 1000, dest.Len())
	assert.NoError(t, src.Err())
	assert.Zero(t, ctx.Active())
}

func TestSource_StartAtOffset(t *testing.T) {
	mock := clock.NewMock()
	ctx := Open(WithClock(mock))
	defer ctx.Close()

	dest := &collector{}
	src, err := ctx.NewSource(ramp(t, 1000), dest)
	require.NoError(t, err)
	require.NoError(t, src.Start(0.5))

	mock.Add(time.Second)
	assert.Eventually(t, func() bool { return closed(src.Done()) }, time.Second, time.Millisecond)

	assert.True(t, closed(src.Ended()))
	assert.Equal(t, 500, dest.Len())
	assert.InDelta(t, 0.5, dest.First()[0], 1e-6)
	assert.Equal(t, dest.First()[0], dest.First()[1], "mono is duplicated to both channels")
}

func TestSource_OffsetPastEnd(t *testing.T) {
	ctx := Open(WithClock(clock.NewMock()))
	defer ctx.Close()

	src, err := ctx.NewSource(ramp(t, 100), nil)
	require.NoError(t, err)
	require.NoError(t, src.Start(5))

	assert.True(t, closed(src.Ended()))
	assert.True(t, closed(src.Done()))
}

func TestSource_SingleUse(t *testing.T) {
	ctx := Open(WithClock(clock.NewMock()))
	defer ctx.Close()

	src, err := ctx.NewSource(ramp(t, 1000), nil)
	require.NoError(t, err)
	require.NoError(t, src.Start(0))
	assert.ErrorIs(t, src.Start(0), ErrSourceUsed)

	src.Stop()
	assert.ErrorIs(t, src.Start(0), ErrSourceUsed)

	unstarted, err := ctx.NewSource(ramp(t, 1000), nil)
	require.NoError(t, err)
	unstarted.Stop()
	assert.ErrorIs(t, unstarted.Start(0), ErrSourceUsed)
}

func TestSource_StopBeforeEnd(t *testing.T) {
	mock := clock.NewMock()
	ctx := Open(WithClock(mock))
	defer ctx.Close()

	src, err := ctx.NewSource(ramp(t, 1000), nil)
	require.NoError(t, err)
	require.NoError(t, src.Start(0))

	mock.Add(200 * time.Millisecond)
	src.Stop()
	src.Stop()

	assert.True(t, closed(src.Done()))
	assert.False(t, closed(src.Ended()), "stopped sources do not report a natural end")
	assert.Zero(t, ctx.Active())
}

func TestSource_DestinationError(t *testing.T) {
	mock := clock.NewMock()
	ctx := Open(WithClock(mock))
	defer ctx.Close()

	boom := errors.New("sink closed")
	src, err := ctx.NewSource(ramp(t, 1000), &collector{err: boom})
	require.NoError(t, err)
	require.NoError(t, src.Start(0))

	mock.Add(100 * time.Millisecond)
	assert.Eventually(t, func() bool { return closed(src.Done()) }, time.Second, time.Millisecond)
	assert.ErrorIs(t, src.Err(), boom)
	assert.False(t, closed(src.Ended()))
}

func TestContext_CloseStopsSources(t *testing.T) {
	ctx := Open(WithClock(clock.NewMock()))

	playing, err := ctx.NewSource(ramp(t, 1000), nil)
	require.NoError(t, err)
	require.NoError(t, playing.Start(0))

	idle, err := ctx.NewSource(ramp(t, 1000), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ctx.Active())

	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())

	assert.True(t, closed(playing.Done()))
	assert.True(t, closed(idle.Done()))
	assert.Zero(t, ctx.Active())

	_, err = ctx.NewSource(ramp(t, 10), nil)
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, idle.Start(0), ErrSourceUsed)
}

func TestAppendS16LE(t *testing.T) {
	got := appendS16LE(nil, [][2]float64{{0, 1}, {-1, 2}})
	assert.Equal(t, []byte{
		0x00, 0x00, 0xff, 0x7f,
		0x00, 0x80, 0xff, 0x7f,
	}, got)
}

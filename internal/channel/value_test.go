package channel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueLatestBeforePublishIsZero(t *testing.T) {
	_, rx := NewValue[int]()

	v, err := rx.Latest()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestValueLatestReturnsFreshestValue(t *testing.T) {
	tx, rx := NewValue[int]()

	for i := 1; i <= 100; i++ {
		require.NoError(t, tx.Publish(i))
	}

	v, err := rx.Latest()
	require.NoError(t, err)
	assert.Equal(t, 100, v)
	assert.Equal(t, uint64(99), tx.Overwritten())

	// nothing new: the cached value is handed out again
	v, err = rx.Latest()
	require.NoError(t, err)
	assert.Equal(t, 100, v)
}

func TestValueTakeReportsFreshness(t *testing.T) {
	tx, rx := NewValue[bool]()

	_, fresh, err := rx.Take()
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, tx.Publish(true))
	v, fresh, err := rx.Take()
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, v)

	_, fresh, err = rx.Take()
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestValuePublishAfterReceiverClose(t *testing.T) {
	tx, rx := NewValue[string]()
	rx.Close()

	assert.ErrorIs(t, tx.Publish("late"), ErrClosed)
}

func TestValueUnreadValueSurvivesSenderClose(t *testing.T) {
	tx, rx := NewValue[string]()
	require.NoError(t, tx.Publish("quit"))
	tx.Close()

	v, err := rx.Latest()
	require.NoError(t, err)
	assert.Equal(t, "quit", v)

	_, err = rx.Latest()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestValueConcurrentReaderNeverGoesBackwards(t *testing.T) {
	tx, rx := NewValue[int]()
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			_ = tx.Publish(i)
		}
		tx.Close()
	}()

	last := 0
	for {
		v, err := rx.Latest()
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			break
		}
		require.GreaterOrEqual(t, v, last)
		last = v
	}
	wg.Wait()
	assert.Equal(t, n, last)
}

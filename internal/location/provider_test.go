package location

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentPositionWaitsForNextFix(t *testing.T) {
	var d dispatcher
	done := make(chan Fix, 1)
	go func() {
		f, err := d.CurrentPosition(context.Background(), Options{Timeout: time.Second})
		if err == nil {
			done <- f
		}
	}()

	want := Fix{Point: orb.Point{28.04, -26.2}}
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.waiters) == 1
	}, time.Second, time.Millisecond)
	d.deliver(want)

	select {
	case got := <-done:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("current position never returned")
	}
}

func TestCurrentPositionTimeout(t *testing.T) {
	var d dispatcher
	_, err := d.CurrentPosition(context.Background(), Options{Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.waiters)
}

func TestCurrentPositionCancelled(t *testing.T) {
	var d dispatcher
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.CurrentPosition(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeliverInRegistrationOrder(t *testing.T) {
	var d dispatcher
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		_, err := d.WatchPosition(context.Background(), Options{}, func(Fix) { order = append(order, i) }, nil)
		require.NoError(t, err)
	}
	d.deliver(Fix{})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestNonTerminalFailureKeepsWatches(t *testing.T) {
	var d dispatcher
	var errs []error
	_, err := d.WatchPosition(context.Background(), Options{}, nil, func(err error) { errs = append(errs, err) })
	require.NoError(t, err)

	d.fail(ErrPermissionDenied, false)
	assert.Equal(t, []error{ErrPermissionDenied}, errs)
	assert.Equal(t, 1, d.Watching())

	_, err = d.WatchPosition(context.Background(), Options{}, nil, nil)
	assert.NoError(t, err)
}

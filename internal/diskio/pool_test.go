package diskio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunExecutesSynchronously(t *testing.T) {
	p := New(2)
	var ran int32
	err := p.Run(func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), ran)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(1)
	var inFlight int32
	var maxSeen int32

	done1 := p.Go(func() error {
		atomic.AddInt32(&inFlight, 1)
		if v := atomic.LoadInt32(&inFlight); v > atomic.LoadInt32(&maxSeen) {
			atomic.StoreInt32(&maxSeen, v)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	done2 := p.Go(func() error {
		atomic.AddInt32(&inFlight, 1)
		if v := atomic.LoadInt32(&inFlight); v > atomic.LoadInt32(&maxSeen) {
			atomic.StoreInt32(&maxSeen, v)
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})

	<-done1
	<-done2
	assert.Equal(t, int32(1), maxSeen)
}

package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeLocksSerializeSameKey(t *testing.T) {
	locks := NewScopeLocks()

	release, ok := locks.Acquire("expert:1:ENTER_MARKET", 0)
	require.True(t, ok)

	// Second acquisition times out instead of blocking forever.
	start := time.Now()
	_, ok = locks.Acquire("expert:1:ENTER_MARKET", 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	release()
	release2, ok := locks.Acquire("expert:1:ENTER_MARKET", 50*time.Millisecond)
	require.True(t, ok)
	release2()
}

func TestScopeLocksAreIndependentPerKey(t *testing.T) {
	locks := NewScopeLocks()

	release1, ok := locks.Acquire("expert:1:ENTER_MARKET", 0)
	require.True(t, ok)
	defer release1()

	// A different expert or use case is never blocked.
	release2, ok := locks.Acquire("expert:2:ENTER_MARKET", 0)
	require.True(t, ok)
	defer release2()
	release3, ok := locks.Acquire("expert:1:OPEN_POSITIONS", 0)
	require.True(t, ok)
	defer release3()
}

func TestScopeLocksWaiterGetsLockOnRelease(t *testing.T) {
	locks := NewScopeLocks()

	release, ok := locks.Acquire("k", 0)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := false
	go func() {
		defer wg.Done()
		r, ok := locks.Acquire("k", 500*time.Millisecond)
		if ok {
			acquired = true
			r()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()
	assert.True(t, acquired)
}

package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func TestFakeClock_Frozen(t *testing.T) {
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	c := NewFakeClock(start)
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSteppingClock(t *testing.T) {
	c := NewSteppingClock(start, time.Millisecond)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Millisecond), c.Now())
	assert.Equal(t, start.Add(2*time.Millisecond), c.Now())
}

func TestFakeClock_ConcurrentAccess(t *testing.T) {
	c := NewSteppingClock(start, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(50*time.Millisecond), c.Now())
}

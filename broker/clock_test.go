package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_AdvanceFiresElapsedWaiters(t *testing.T) {
	c := NewManualClock(0)
	early := c.After(100 * time.Millisecond)
	late := c.After(time.Second)

	c.Advance(200 * time.Millisecond)

	select {
	case <-early:
	default:
		t.Fatal("early waiter should have fired")
	}
	select {
	case <-late:
		t.Fatal("late waiter should not have fired yet")
	default:
	}
	assert.Equal(t, int64(200), c.NowMillis())
}

func TestManualClock_AfterZeroFiresImmediately(t *testing.T) {
	c := NewManualClock(1_000)
	ch := c.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("zero-duration After should fire without Advance")
	}
}

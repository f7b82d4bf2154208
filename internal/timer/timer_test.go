package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushFiresInExpiryOrder(t *testing.T) {
	svc := NewService()
	var order []string

	a := svc.New("p1", "a", func(uint64) { order = append(order, "a") })
	b := svc.New("p1", "b", func(uint64) { order = append(order, "b") })
	c := svc.New("p1", "c", func(uint64) { order = append(order, "c") })

	a.Set(300)
	b.Set(100)
	c.Set(200)

	fired := svc.Flush(1000)
	require.Equal(t, 3, fired)
	require.Equal(t, []string{"b", "c", "a"}, order)
}

func TestFlushSkipsNotYetDue(t *testing.T) {
	svc := NewService()
	fired := false
	tm := svc.New("p1", "t", func(uint64) { fired = true })
	tm.Set(500)

	svc.Flush(400)
	require.False(t, fired)

	svc.Flush(500)
	require.True(t, fired)
}

func TestCancelIsIdempotentAndSurvivesPastExpiry(t *testing.T) {
	svc := NewService()
	fired := false
	tm := svc.New("p1", "t", func(uint64) { fired = true })
	tm.Set(100)
	tm.Cancel()
	tm.Cancel() // idempotent

	svc.Flush(1000)
	require.False(t, fired)
}

func TestCallbackMayRescheduleItselfWithoutRefiring(t *testing.T) {
	svc := NewService()
	count := 0
	var self *Timer
	self = svc.New("p1", "t", func(now uint64) {
		count++
		if count == 1 {
			self.Set(now) // reschedule itself for "now" again
		}
	})
	self.Set(100)

	svc.Flush(100)
	require.Equal(t, 1, count, "a timer that reschedules itself must not refire in the same Flush")

	svc.Flush(100)
	require.Equal(t, 2, count, "but should fire again on the next Flush since it's still due")
}

func TestCancelOwnerRemovesAllOfOwners(t *testing.T) {
	svc := NewService()
	fired1, fired2, fired3 := false, false, false
	t1 := svc.New("p1", "a", func(uint64) { fired1 = true })
	t2 := svc.New("p1", "b", func(uint64) { fired2 = true })
	t3 := svc.New("p2", "c", func(uint64) { fired3 = true })
	t1.Set(10)
	t2.Set(10)
	t3.Set(10)

	svc.CancelOwner("p1")
	svc.Flush(100)

	require.False(t, fired1)
	require.False(t, fired2)
	require.True(t, fired3)
}

func TestTimerNotRearmedDuringFlushIsDisarmed(t *testing.T) {
	svc := NewService()
	calls := 0
	var tm *Timer
	tm = svc.New("p1", "t", func(now uint64) {
		calls++
	})
	tm.Set(50)
	svc.Flush(50)
	require.Equal(t, 1, calls)
	require.False(t, tm.Armed())
}

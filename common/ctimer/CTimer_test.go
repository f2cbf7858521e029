package ctimer

import (
	"sync/atomic"
	"testing"
	"time"

	"tbroker/common/test_utils"
)

func TestCTimer(t *testing.T) {
	test_utils.NewTestGroup("CTimer", "").Cases([]*test_utils.Assertion{
		test_utils.NewTestCase("simple timeout", "", func() bool {
			var flag int32
			New(time.Millisecond*100, func() {
				atomic.StoreInt32(&flag, 1)
			}).Start()
			if atomic.LoadInt32(&flag) > 0 {
				return false
			}
			return test_utils.Eventually(time.Second, func() bool { return atomic.LoadInt32(&flag) == 1 })
		}),
		test_utils.NewTestCase("reset postpones the job", "", func() bool {
			var flag int32
			timer := New(time.Millisecond*300, func() {
				atomic.StoreInt32(&flag, 1)
			})
			timer.Start()
			time.Sleep(time.Millisecond * 150)
			timer.Reset()
			time.Sleep(time.Millisecond * 200)
			if atomic.LoadInt32(&flag) != 0 {
				return false
			}
			return test_utils.Eventually(time.Second, func() bool { return atomic.LoadInt32(&flag) == 1 })
		}),
		test_utils.NewTestCase("cancel", "", func() bool {
			var flag int32
			timer := New(time.Millisecond*100, func() {
				atomic.StoreInt32(&flag, 1)
			})
			timer.Start()
			timer.Cancel()
			time.Sleep(time.Millisecond * 250)
			return atomic.LoadInt32(&flag) == 0 && timer.Status() == StatusCancelled
		}),
		test_utils.NewTestCase("repeat until cancelled", "", func() bool {
			var count int32
			timer := New(time.Millisecond*20, func() {
				atomic.AddInt32(&count, 1)
			})
			timer.Repeat()
			ok := test_utils.Eventually(time.Second, func() bool { return atomic.LoadInt32(&count) >= 3 })
			timer.Cancel()
			time.Sleep(time.Millisecond * 50)
			after := atomic.LoadInt32(&count)
			time.Sleep(time.Millisecond * 100)
			return ok && atomic.LoadInt32(&count) == after
		}),
	}).Run(t)
}

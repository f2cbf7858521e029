package test_utils

import "time"

// Eventually polls cond every 10ms until it holds or timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func AssertUnOrderedStringsEqual(l []string, r []string) bool {
	if len(l) != len(r) {
		return false
	}
	counts := make(map[string]int, len(l))
	for _, s := range l {
		counts[s]++
	}
	for _, s := range r {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}

package coordinator

import "time"

// immediateScheduler fires every tick instantly, letting tests exercise
// the poll loop in InitiateCheckpoint/GenerateStreamCuts without
// sleeping in wall-clock time.
type immediateScheduler struct{}

func (immediateScheduler) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

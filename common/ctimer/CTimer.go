package ctimer

import (
	"sync"
	"time"
)

const (
	StatusIdle = iota
	StatusWaiting
	StatusRepeatWaiting
	StatusCancelled
)

type ICTimer interface {
	Start()
	Repeat()
	Reset()
	Cancel()
	Status() uint8
}

// CTimer runs job once after interval (Start) or every interval (Repeat) until cancelled.
type CTimer struct {
	job      func()
	interval time.Duration
	lock     *sync.Mutex
	status   uint8
	timer    *time.Timer
	stop     chan struct{}
}

func New(interval time.Duration, job func()) ICTimer {
	return &CTimer{
		job:      job,
		interval: interval,
		lock:     new(sync.Mutex),
		status:   StatusIdle,
	}
}

func (t *CTimer) withLock(cb func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	cb()
}

func (t *CTimer) Status() (status uint8) {
	t.withLock(func() {
		status = t.status
	})
	return
}

func (t *CTimer) Start() {
	t.withLock(func() {
		if t.status != StatusIdle {
			return
		}
		t.status = StatusWaiting
		t.timer = time.AfterFunc(t.interval, t.fire)
	})
}

func (t *CTimer) fire() {
	run := false
	t.withLock(func() {
		if t.status == StatusWaiting {
			t.status = StatusIdle
			run = true
		}
	})
	if run {
		t.job()
	}
}

func (t *CTimer) Repeat() {
	t.withLock(func() {
		if t.status != StatusIdle {
			return
		}
		t.status = StatusRepeatWaiting
		t.stop = make(chan struct{})
		go t.repeatLoop(t.stop)
	})
}

func (t *CTimer) repeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.job()
		}
	}
}

// Reset restarts the countdown of a waiting one-shot timer, an idle timer is started.
func (t *CTimer) Reset() {
	started := false
	t.withLock(func() {
		if t.status == StatusWaiting && t.timer != nil {
			t.timer.Stop()
			t.timer = time.AfterFunc(t.interval, t.fire)
			started = true
		}
	})
	if !started {
		t.Start()
	}
}

func (t *CTimer) Cancel() {
	t.withLock(func() {
		switch t.status {
		case StatusWaiting:
			t.timer.Stop()
		case StatusRepeatWaiting:
			close(t.stop)
		default:
			return
		}
		t.status = StatusCancelled
	})
}

package app

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// questionTimer is the one-shot auto-advance timer of a session. It is guarded
// by the session mutex; every schedule or cancel bumps the token so a fire that
// races with cancellation is recognized as stale.
type questionTimer struct {
	clock clockwork.Clock
	stop  chan struct{}
	token uint64
}

func newQuestionTimer(clock clockwork.Clock) *questionTimer {
	return &questionTimer{clock: clock}
}

// schedule replaces any pending timer with one that calls fire(token) after d.
func (t *questionTimer) schedule(d time.Duration, fire func(token uint64)) uint64 {
	t.cancel()
	if d < 0 {
		d = 0
	}
	token := t.token
	timer := t.clock.NewTimer(d)
	stop := make(chan struct{})
	t.stop = stop

	go func() {
		select {
		case <-timer.Chan():
			fire(token)
		case <-stop:
			stopAndDrainTimer(timer)
		}
	}()
	return token
}

// cancel stops the pending timer, if any.
func (t *questionTimer) cancel() {
	t.token++
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *questionTimer) pending() bool {
	return t.stop != nil
}

// current reports whether token belongs to the live timer.
func (t *questionTimer) current(token uint64) bool {
	return t.stop != nil && token == t.token
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

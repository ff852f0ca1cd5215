package usecase

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// typingDebouncer tracks the viewer's own typing indicator. A keystroke
// announces typing once and (re)arms an idle timer; idle expiry, a send or
// a channel switch announces the stop. It is only touched from the session
// loop.
type typingDebouncer struct {
	clock clockwork.Clock
	idle  time.Duration
	// announce sends SetTyping for channel.
	announce func(channelID string, typing bool)
	// expire is called from the timer goroutine with the sequence number
	// it was armed with.
	expire func(seq uint64)

	channel string
	active  bool
	seq     uint64
	timer   clockwork.Timer
}

func newTypingDebouncer(clock clockwork.Clock, idle time.Duration, announce func(string, bool), expire func(uint64)) *typingDebouncer {
	return &typingDebouncer{clock: clock, idle: idle, announce: announce, expire: expire}
}

func (t *typingDebouncer) keystroke(channelID string) {
	if t.active && t.channel != channelID {
		t.stop()
	}
	if !t.active {
		t.channel = channelID
		t.active = true
		t.announce(channelID, true)
	}
	t.arm()
}

func (t *typingDebouncer) arm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.timer = t.clock.AfterFunc(t.idle, func() { t.expire(seq) })
}

// expired handles an idle timer firing; stale timers are ignored.
func (t *typingDebouncer) expired(seq uint64) {
	if seq != t.seq {
		return
	}
	t.stop()
}

// stop announces the end of typing if it was announced.
func (t *typingDebouncer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
	if t.active {
		t.active = false
		t.announce(t.channel, false)
	}
}

// stopIn stops only when the indicator is up in channelID.
func (t *typingDebouncer) stopIn(channelID string) {
	if t.active && t.channel == channelID {
		t.stop()
	}
}

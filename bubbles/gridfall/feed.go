package gridfall

import (
	"iter"
	"time"

	"github.com/ghthor/gridfall/piece"
)

type lockEvent struct {
	At    time.Time
	Kind  piece.Kind
	Lines int
}

// lockFeed keeps the most recent locks. It has no locking of its own and
// belongs to a single Model.
type lockFeed struct {
	events []lockEvent
	write  int
	count  int
}

func newLockFeed(size int) *lockFeed {
	return &lockFeed{events: make([]lockEvent, size)}
}

func (f *lockFeed) push(e lockEvent) {
	f.events[f.write] = e
	f.write = (f.write + 1) % len(f.events)
	f.count = min(f.count+1, len(f.events))
}

func (f *lockFeed) len() int { return f.count }

// recent yields the stored locks newest first.
func (f *lockFeed) recent() iter.Seq[lockEvent] {
	return func(yield func(lockEvent) bool) {
		for i := 1; i <= f.count; i++ {
			idx := (f.write - i + len(f.events)) % len(f.events)
			if !yield(f.events[idx]) {
				return
			}
		}
	}
}

func (f *lockFeed) reset() {
	clear(f.events)
	f.write, f.count = 0, 0
}

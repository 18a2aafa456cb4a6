package gridfall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lines(f *lockFeed) []int {
	var out []int
	for e := range f.recent() {
		out = append(out, e.Lines)
	}
	return out
}

func TestLockFeed(t *testing.T) {
	f := newLockFeed(3)
	assert.Empty(t, lines(f))

	f.push(lockEvent{Lines: 1})
	f.push(lockEvent{Lines: 2})
	assert.Equal(t, []int{2, 1}, lines(f))

	for i := 3; i <= 5; i++ {
		f.push(lockEvent{Lines: i})
	}
	assert.Equal(t, 3, f.len())
	assert.Equal(t, []int{5, 4, 3}, lines(f))

	for e := range f.recent() {
		assert.Equal(t, 5, e.Lines)
		break
	}

	f.reset()
	assert.Equal(t, 0, f.len())
	assert.Empty(t, lines(f))
}

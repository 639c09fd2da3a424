package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func id(replica string, seq uint64) CharID {
	return CharID{Replica: replica, Seq: seq}
}

func TestTextSequentialInsert(t *testing.T) {
	buf := NewText()
	buf.Insert(id("a", 1), CharID{}, 'h')
	buf.Insert(id("a", 2), id("a", 1), 'i')
	assert.Equal(t, "hi", buf.String())
}

// Concurrent inserts at the same origin converge to the same order on every
// replica, regardless of arrival order.
func TestTextConcurrentSiblingsConverge(t *testing.T) {
	left := NewText()
	right := NewText()

	ops := []struct {
		id, after CharID
		ch        rune
	}{
		{id("a", 1), CharID{}, 'a'},
		{id("b", 1), CharID{}, 'b'},
		{id("c", 1), CharID{}, 'c'},
	}
	for _, op := range ops {
		left.Insert(op.id, op.after, op.ch)
	}
	for i := len(ops) - 1; i >= 0; i-- {
		right.Insert(ops[i].id, ops[i].after, ops[i].ch)
	}
	assert.Equal(t, left.String(), right.String())
}

func TestTextDeleteTombstones(t *testing.T) {
	buf := NewText()
	buf.Insert(id("a", 1), CharID{}, 'x')
	buf.Insert(id("a", 2), id("a", 1), 'y')
	assert.True(t, buf.Delete(id("a", 1)))
	assert.Equal(t, "y", buf.String())
	// Idempotent.
	assert.True(t, buf.Delete(id("a", 1)))
	assert.Equal(t, "y", buf.String())
}

func TestTextInsertUnknownOrigin(t *testing.T) {
	buf := NewText()
	assert.False(t, buf.Insert(id("a", 2), id("a", 1), 'x'))
	assert.Equal(t, "", buf.String())
}

func TestTextDuplicateInsertIgnored(t *testing.T) {
	buf := NewText()
	assert.True(t, buf.Insert(id("a", 1), CharID{}, 'x'))
	assert.True(t, buf.Insert(id("a", 1), CharID{}, 'x'))
	assert.Equal(t, "x", buf.String())
}

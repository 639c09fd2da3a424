package document

import "sort"

// CharID identifies a single inserted character: the authoring replica plus
// a per-replica sequence number. The zero value is the head sentinel.
type CharID struct {
	Replica string `json:"replica"`
	Seq     uint64 `json:"seq"`
}

// IsZero reports whether the id is the head sentinel.
func (c CharID) IsZero() bool {
	return c.Replica == "" && c.Seq == 0
}

func (c CharID) less(o CharID) bool {
	if c.Seq != o.Seq {
		return c.Seq < o.Seq
	}
	return c.Replica < o.Replica
}

type textChar struct {
	ID      CharID
	Ch      rune
	Deleted bool
}

// Text is a character-sequence merge structure. Each character is inserted
// relative to a left origin; concurrent siblings are ordered by descending
// CharID, making document order independent of arrival order. Deletions
// tombstone characters rather than removing them.
type Text struct {
	children map[CharID][]*textChar // per left-origin, sorted desc by ID
	byID     map[CharID]*textChar
}

// NewText returns an empty buffer.
func NewText() *Text {
	return &Text{
		children: make(map[CharID][]*textChar),
		byID:     make(map[CharID]*textChar),
	}
}

// Insert integrates a character with the given left origin. It is idempotent
// and returns false when the origin is unknown (caller drops the op).
func (t *Text) Insert(id CharID, after CharID, ch rune) bool {
	if _, dup := t.byID[id]; dup {
		return true
	}
	if !after.IsZero() {
		if _, ok := t.byID[after]; !ok {
			return false
		}
	}
	item := &textChar{ID: id, Ch: ch}
	siblings := t.children[after]
	i := sort.Search(len(siblings), func(i int) bool {
		return siblings[i].ID.less(id)
	})
	siblings = append(siblings, nil)
	copy(siblings[i+1:], siblings[i:])
	siblings[i] = item
	t.children[after] = siblings
	t.byID[id] = item
	return true
}

// clone deep-copies the buffer. Used to stage text edits inside a local
// transaction without touching the committed state.
func (t *Text) clone() *Text {
	out := NewText()
	for id, item := range t.byID {
		out.byID[id] = &textChar{ID: item.ID, Ch: item.Ch, Deleted: item.Deleted}
	}
	for parent, siblings := range t.children {
		cp := make([]*textChar, len(siblings))
		for i, item := range siblings {
			cp[i] = out.byID[item.ID]
		}
		out.children[parent] = cp
	}
	return out
}

// Delete tombstones a character. Idempotent; returns false if id is unknown.
func (t *Text) Delete(id CharID) bool {
	item, ok := t.byID[id]
	if !ok {
		return false
	}
	item.Deleted = true
	return true
}

// visible returns live characters in document order (DFS from the head).
func (t *Text) visible() []*textChar {
	var out []*textChar
	var walk func(parent CharID)
	walk = func(parent CharID) {
		for _, item := range t.children[parent] {
			if !item.Deleted {
				out = append(out, item)
			}
			walk(item.ID)
		}
	}
	walk(CharID{})
	return out
}

// String renders the merged text.
func (t *Text) String() string {
	items := t.visible()
	rs := make([]rune, len(items))
	for i, item := range items {
		rs[i] = item.Ch
	}
	return string(rs)
}

// Len returns the number of live characters.
func (t *Text) Len() int {
	return len(t.visible())
}

// ids returns the CharIDs of live characters in document order.
func (t *Text) ids() []CharID {
	items := t.visible()
	out := make([]CharID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

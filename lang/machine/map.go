package machine

import (
	"strings"

	"github.com/dolthub/swiss"
	"github.com/mna/roseau/lang/types"
)

// mapKey is the comparable projection of a key value, so that keys hash
// and compare by value in the swiss table.
type mapKey struct {
	kind byte
	i    int64
	u    uint64
	f    float64
	s    string
}

type mapEntry struct {
	key Value
	val Value
}

// Map is a mutable map value backed by a swiss table. Insertion order is
// tracked so iteration is deterministic.
type Map struct {
	T     *types.Type
	m     *swiss.Map[mapKey, *mapEntry]
	order []*mapEntry
}

// NewMap returns a map value with initial capacity for at least size
// entries.
func NewMap(t *types.Type, size int) *Map {
	return &Map{T: t, m: swiss.NewMap[mapKey, *mapEntry](uint32(size))}
}

func (v *Map) VType() *types.Type { return v.T }
func (v *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	i := 0
	for _, e := range v.order {
		if e == nil {
			continue
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.key.String())
		sb.WriteString(" : ")
		sb.WriteString(e.val.String())
		i++
	}
	if i == 0 {
		sb.WriteString(":")
	}
	sb.WriteByte(']')
	return sb.String()
}

func keyOf(v Value) mapKey {
	switch x := v.(type) {
	case *Int:
		return mapKey{kind: 'i', i: x.V}
	case *Uint:
		return mapKey{kind: 'u', u: x.V}
	case *Float:
		return mapKey{kind: 'f', f: x.V}
	case *Bool:
		b := int64(0)
		if x.V {
			b = 1
		}
		return mapKey{kind: 'b', i: b}
	case *Str:
		return mapKey{kind: 's', s: x.V}
	case *Signal:
		return mapKey{kind: 'g', i: int64(x.Sig)}
	}
	return mapKey{kind: 'x', s: v.String()}
}

// Get returns the value for the key.
func (v *Map) Get(key Value) (Value, bool) {
	e, ok := v.m.Get(keyOf(key))
	if !ok {
		return nil, false
	}
	return e.val, true
}

// Set stores the value under the key.
func (v *Map) Set(key, val Value) {
	k := keyOf(key)
	if e, ok := v.m.Get(k); ok {
		e.val = val
		return
	}
	e := &mapEntry{key: key, val: val}
	v.m.Put(k, e)
	v.order = append(v.order, e)
}

// Delete removes the key, returning true if it was present.
func (v *Map) Delete(key Value) bool {
	k := keyOf(key)
	e, ok := v.m.Get(k)
	if !ok {
		return false
	}
	v.m.Delete(k)
	for i, oe := range v.order {
		if oe == e {
			v.order[i] = nil
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (v *Map) Len() int { return v.m.Count() }

// Clear removes every entry.
func (v *Map) Clear() {
	v.m = swiss.NewMap[mapKey, *mapEntry](8)
	v.order = v.order[:0]
}

// Entries iterates the entries in insertion order.
func (v *Map) Entries(fn func(key, val Value) bool) {
	for _, e := range v.order {
		if e == nil {
			continue
		}
		if !fn(e.key, e.val) {
			return
		}
	}
}

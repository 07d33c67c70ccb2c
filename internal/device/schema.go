package device

import (
	logs "github.com/danmuck/xrsync/internal/logging"
)

// Slot addresses one element of one typed array.
type Slot struct {
	Kind  Kind
	Index int
}

// Schema maps a device's named features onto dense typed slots.
// Once assigned to a live State it is never renumbered.
type Schema struct {
	lengths [KindCount]int
	slots   map[string]Slot
	order   []NamedSlot
	unknown int
}

// NamedSlot is one assigned slot together with the feature name that owns it.
type NamedSlot struct {
	Name string
	Slot
}

// BuildSchema dedupes usages by name (first wins), buckets them by kind in
// discovery order and maps the well-known names. Unknown names still occupy
// a slot so array lengths match what the device reports.
func BuildSchema(usages []Usage) Schema {
	s := Schema{slots: make(map[string]Slot)}
	seen := make(map[string]struct{}, len(usages))
	for _, u := range usages {
		if !u.Kind.Valid() {
			logs.Warnf("device.BuildSchema skip usage=%q invalid kind=%d", u.Name, u.Kind)
			continue
		}
		if _, dup := seen[u.Name]; dup {
			continue
		}
		seen[u.Name] = struct{}{}

		slot := Slot{Kind: u.Kind, Index: s.lengths[u.Kind]}
		s.lengths[u.Kind]++
		s.order = append(s.order, NamedSlot{Name: u.Name, Slot: slot})

		known, ok := KnownUsage(u.Name)
		switch {
		case !ok:
			s.unknown++
			logs.Debugf("device.BuildSchema unknown usage=%q kind=%s", u.Name, u.Kind)
		case known != u.Kind:
			s.unknown++
			logs.Warnf("device.BuildSchema usage=%q reported as %s, expected %s", u.Name, u.Kind, known)
		default:
			s.slots[u.Name] = slot
		}
	}
	return s
}

// SchemaFromInfo rebuilds a remote device's schema from its announcement.
// Names outside the catalog and out-of-range indexes are ignored.
func SchemaFromInfo(lengths [KindCount]int, locations map[string]int) Schema {
	s := Schema{slots: make(map[string]Slot, len(locations))}
	for i, n := range lengths {
		if n > 0 {
			s.lengths[i] = n
		}
	}
	for name, idx := range locations {
		kind, ok := KnownUsage(name)
		if !ok || idx < 0 || idx >= s.lengths[kind] {
			s.unknown++
			continue
		}
		slot := Slot{Kind: kind, Index: idx}
		s.slots[name] = slot
		s.order = append(s.order, NamedSlot{Name: name, Slot: slot})
	}
	return s
}

func (s Schema) Len(k Kind) int {
	if !k.Valid() {
		return 0
	}
	return s.lengths[k]
}

func (s Schema) Lengths() [KindCount]int {
	return s.lengths
}

func (s Schema) Lookup(name string) (Slot, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}

// Slots lists every assigned slot, mapped or not, in assignment order.
func (s Schema) Slots() []NamedSlot {
	out := make([]NamedSlot, len(s.order))
	copy(out, s.order)
	return out
}

// Unknown counts features that occupy a slot without a named accessor.
func (s Schema) Unknown() int {
	return s.unknown
}

// Locations returns the named slot index of every mapped feature.
func (s Schema) Locations() map[string]int {
	out := make(map[string]int, len(s.slots))
	for name, slot := range s.slots {
		out[name] = slot.Index
	}
	return out
}

func (s Schema) Equal(o Schema) bool {
	if s.lengths != o.lengths || len(s.slots) != len(o.slots) {
		return false
	}
	for name, slot := range s.slots {
		if other, ok := o.slots[name]; !ok || other != slot {
			return false
		}
	}
	return true
}

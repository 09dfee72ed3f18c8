package nodenet

import "sort"

// Link is a weighted connection from a gate of one node to a slot of another.
type Link struct {
	SourceUID string  `json:"source_node_uid"`
	Gate      string  `json:"source_gate_name"`
	TargetUID string  `json:"target_node_uid"`
	Slot      string  `json:"target_slot_name"`
	Weight    float64 `json:"weight"`
	Certainty float64 `json:"certainty"`
}

type linkID uint64

type linkKey struct {
	source, gate, target, slot string
}

func (l *Link) key() linkKey {
	return linkKey{l.SourceUID, l.Gate, l.TargetUID, l.Slot}
}

// linkTable owns all links of a graph. Forward and backward adjacency are
// indices into the arena and are only touched by put and remove.
type linkTable struct {
	next  linkID
	arena map[linkID]*Link
	byKey map[linkKey]linkID
	out   map[string][]linkID
	in    map[string][]linkID
}

func newLinkTable() *linkTable {
	return &linkTable{
		arena: make(map[linkID]*Link),
		byKey: make(map[linkKey]linkID),
		out:   make(map[string][]linkID),
		in:    make(map[string][]linkID),
	}
}

// put creates the link or, if the 4-tuple already exists, updates its
// weight and certainty. It reports whether a new link was created.
func (t *linkTable) put(l Link) bool {
	k := l.key()
	if id, ok := t.byKey[k]; ok {
		existing := t.arena[id]
		existing.Weight = l.Weight
		existing.Certainty = l.Certainty
		return false
	}
	t.next++
	id := t.next
	stored := l
	t.arena[id] = &stored
	t.byKey[k] = id
	t.out[l.SourceUID] = append(t.out[l.SourceUID], id)
	t.in[l.TargetUID] = append(t.in[l.TargetUID], id)
	return true
}

func (t *linkTable) get(k linkKey) (*Link, bool) {
	id, ok := t.byKey[k]
	if !ok {
		return nil, false
	}
	return t.arena[id], true
}

func (t *linkTable) remove(k linkKey) bool {
	id, ok := t.byKey[k]
	if !ok {
		return false
	}
	delete(t.byKey, k)
	delete(t.arena, id)
	t.out[k.source] = dropID(t.out[k.source], id)
	if len(t.out[k.source]) == 0 {
		delete(t.out, k.source)
	}
	t.in[k.target] = dropID(t.in[k.target], id)
	if len(t.in[k.target]) == 0 {
		delete(t.in, k.target)
	}
	return true
}

func dropID(ids []linkID, id linkID) []linkID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// outgoing returns the links leaving uid, restricted to gate unless gate is empty.
func (t *linkTable) outgoing(uid, gate string) []*Link {
	var out []*Link
	for _, id := range t.out[uid] {
		l := t.arena[id]
		if gate == "" || l.Gate == gate {
			out = append(out, l)
		}
	}
	return out
}

// incoming returns the links entering uid, restricted to slot unless slot is empty.
func (t *linkTable) incoming(uid, slot string) []*Link {
	var in []*Link
	for _, id := range t.in[uid] {
		l := t.arena[id]
		if slot == "" || l.Slot == slot {
			in = append(in, l)
		}
	}
	return in
}

// removeMatching deletes every link leaving source that matches the given
// filters; empty strings match anything.
func (t *linkTable) removeMatching(source, gate, target, slot string) int {
	var keys []linkKey
	for _, l := range t.outgoing(source, gate) {
		if (target == "" || l.TargetUID == target) && (slot == "" || l.Slot == slot) {
			keys = append(keys, l.key())
		}
	}
	for _, k := range keys {
		t.remove(k)
	}
	return len(keys)
}

// removeNode deletes every link touching uid in either direction.
func (t *linkTable) removeNode(uid string) {
	var keys []linkKey
	for _, l := range t.outgoing(uid, "") {
		keys = append(keys, l.key())
	}
	for _, l := range t.incoming(uid, "") {
		keys = append(keys, l.key())
	}
	for _, k := range keys {
		t.remove(k)
	}
}

func (t *linkTable) len() int { return len(t.arena) }

// all returns copies of every link ordered by source, gate, target and slot.
func (t *linkTable) all() []Link {
	out := make([]Link, 0, len(t.arena))
	for _, l := range t.arena {
		out = append(out, *l)
	}
	sortLinks(out)
	return out
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.SourceUID != b.SourceUID {
			return a.SourceUID < b.SourceUID
		}
		if a.Gate != b.Gate {
			return a.Gate < b.Gate
		}
		if a.TargetUID != b.TargetUID {
			return a.TargetUID < b.TargetUID
		}
		return a.Slot < b.Slot
	})
}

package nodenet

import "sort"

// SheafID identifies a parallel activation context. A sheaf opened by a node
// records the sheaf it branched from and the uid of the opening node.
type SheafID struct {
	Branch string `json:"branch"`
	Owner  string `json:"owner,omitempty"`
}

// DefaultSheaf is present on every slot and gate.
var DefaultSheaf = SheafID{Branch: "default"}

// String returns the flat identifier used as a map key and in exported data.
func (s SheafID) String() string {
	if s.Owner == "" {
		return s.Branch
	}
	return s.Branch + "-" + s.Owner
}

// IsDefault reports whether s is the default sheaf.
func (s SheafID) IsDefault() bool { return s == DefaultSheaf }

// Open returns the id of the sheaf that owner opens from s.
func (s SheafID) Open(owner string) SheafID {
	return SheafID{Branch: s.String(), Owner: owner}
}

// Sheaf is an activation value within one context.
type Sheaf struct {
	ID         SheafID
	Name       string
	Activation float64
}

func newSheaf(id SheafID) *Sheaf {
	name := id.String()
	if id.IsDefault() {
		name = "default"
	}
	return &Sheaf{ID: id, Name: name}
}

func (s *Sheaf) clone() *Sheaf {
	c := *s
	return &c
}

type sheafMap map[string]*Sheaf

func defaultSheaves() sheafMap {
	return sheafMap{DefaultSheaf.String(): newSheaf(DefaultSheaf)}
}

// get returns the sheaf for id, creating it with zero activation if needed.
func (m sheafMap) get(id SheafID) *Sheaf {
	key := id.String()
	if s, ok := m[key]; ok {
		return s
	}
	s := newSheaf(id)
	m[key] = s
	return s
}

func (m sheafMap) activation(id SheafID) float64 {
	if s, ok := m[id.String()]; ok {
		return s.Activation
	}
	return 0
}

// sortedKeys returns keys with the default sheaf first, then lexical order.
func (m sheafMap) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := keys[i] == "default", keys[j] == "default"
		if di != dj {
			return di
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (m sheafMap) list() []Sheaf {
	out := make([]Sheaf, 0, len(m))
	for _, k := range m.sortedKeys() {
		out = append(out, *m[k])
	}
	return out
}

package gallery

import "sort"

// Template is an identity's unit vector in one embedding space
type Template struct {
	Vector      []float64
	SampleCount int
}

// Entry is a template together with the identity it belongs to
type Entry struct {
	Key         string
	Vector      []float64
	SampleCount int
}

// Snapshot is a point-in-time copy of the gallery. Nothing the gallery does
// afterwards is visible through it.
type Snapshot struct {
	spaces map[string][]Entry
	keys   []string
}

// Entries returns the entries of one embedding space sorted by key
func (s Snapshot) Entries(space string) []Entry {
	return s.spaces[space]
}

// Keys returns every identity key across spaces, sorted
func (s Snapshot) Keys() []string {
	return s.keys
}

// Len returns the number of distinct identities
func (s Snapshot) Len() int {
	return len(s.keys)
}

// Spaces returns the embedding spaces that hold at least one template
func (s Snapshot) Spaces() []string {
	out := make([]string, 0, len(s.spaces))
	for space := range s.spaces {
		out = append(out, space)
	}
	sort.Strings(out)
	return out
}

func newSnapshot(spaces map[string]map[string]Template) Snapshot {
	s := Snapshot{spaces: make(map[string][]Entry, len(spaces))}
	seen := make(map[string]struct{})

	for space, byKey := range spaces {
		entries := make([]Entry, 0, len(byKey))
		for key, t := range byKey {
			entries = append(entries, Entry{
				Key:         key,
				Vector:      append([]float64(nil), t.Vector...),
				SampleCount: t.SampleCount,
			})
			seen[key] = struct{}{}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		s.spaces[space] = entries
	}

	s.keys = make([]string, 0, len(seen))
	for key := range seen {
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)
	return s
}

package registry

import (
	"sort"

	"github.com/google/btree"
)

type item struct {
	rec *Record
}

func (i item) Less(than btree.Item) bool {
	return i.rec.ID.Less(than.(item).rec.ID)
}

// Sequence is a finite, restartable view over the records of one node class.
// Nothing is copied until the sequence is iterated.
type Sequence struct {
	tree *btree.BTree
}

// Each calls fn for every record in node id order until fn returns false.
func (s Sequence) Each(fn func(*Record) bool) {
	if s.tree == nil {
		return
	}
	s.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(item).rec)
	})
}

func (s Sequence) Len() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// Slice collects the sequence.
func (s Sequence) Slice() []*Record {
	out := make([]*Record, 0, s.Len())
	s.Each(func(r *Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID.Less(recs[j].ID) })
}

// Package registry owns the node records of a model and indexes them by
// node id, by browse name within a parent scope, and by node class.
package registry

import (
	"strings"

	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/google/btree"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrDuplicateNodeID     = errors.New("duplicate node id")
	ErrDuplicateBrowseName = errors.New("duplicate browse name")
	ErrInvalidRecord       = errors.New("invalid node record")
	ErrAmbiguousBrowseName = errors.New("ambiguous browse name")
)

const btreeDegree = 16

// Registry maps node ids to records and back. Define is not safe to call
// concurrently with anything else; once loading is done the registry is only
// read and any number of goroutines may query it.
type Registry struct {
	byID     map[nodeid.NodeID]*Record
	byName   map[string][]*Record
	children map[nodeid.NodeID]map[string]*Record
	byClass  map[ua.NodeClass]*btree.BTree
}

func New() *Registry {
	return &Registry{
		byID:     make(map[nodeid.NodeID]*Record),
		byName:   make(map[string][]*Record),
		children: make(map[nodeid.NodeID]map[string]*Record),
		byClass:  make(map[ua.NodeClass]*btree.BTree),
	}
}

// nameKey normalises browse names so that visually identical names in
// different Unicode forms compare equal.
func nameKey(browseName string) string {
	return norm.NFC.String(browseName)
}

// Define inserts rec in the browse scope of parent; pass nodeid.Null for an
// unscoped node. Browse names must be unique among the children of one parent.
// On error the registry is left unchanged.
func (r *Registry) Define(rec Record, parent nodeid.NodeID) (*Record, error) {
	if rec.ID.IsNull() {
		return nil, errors.Wrap(ErrInvalidRecord, "null node id")
	}
	if rec.BrowseName == "" {
		return nil, errors.Wrapf(ErrInvalidRecord, "%s: empty browse name", rec.ID)
	}
	if !ValidClass(rec.NodeClass) {
		return nil, errors.Wrapf(ErrInvalidRecord, "%s: unsupported node class %d", rec.ID, rec.NodeClass)
	}
	if _, ok := r.byID[rec.ID]; ok {
		return nil, errors.Wrapf(ErrDuplicateNodeID, "%s", rec.ID)
	}
	key := nameKey(rec.BrowseName)
	if !parent.IsNull() {
		if sib, ok := r.children[parent][key]; ok {
			return nil, errors.Wrapf(ErrDuplicateBrowseName, "%q below %s already used by %s", rec.BrowseName, parent, sib.ID)
		}
	}

	stored := rec
	stored.Parent = parent
	if stored.DisplayName == "" {
		stored.DisplayName = stored.BrowseName
	}
	p := &stored

	r.byID[p.ID] = p
	r.byName[key] = append(r.byName[key], p)
	if !parent.IsNull() {
		scope, ok := r.children[parent]
		if !ok {
			scope = make(map[string]*Record)
			r.children[parent] = scope
		}
		scope[key] = p
	}
	tree, ok := r.byClass[p.NodeClass]
	if !ok {
		tree = btree.New(btreeDegree)
		r.byClass[p.NodeClass] = tree
	}
	tree.ReplaceOrInsert(item{p})
	return p, nil
}

// ByID returns the record for id.
func (r *Registry) ByID(id nodeid.NodeID) (*Record, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// ByName finds a record by browse name. With a non-null scope only children
// of scope are considered; otherwise the first record defined with that name
// is returned.
func (r *Registry) ByName(browseName string, scope nodeid.NodeID) (*Record, bool) {
	key := nameKey(browseName)
	if !scope.IsNull() {
		rec, ok := r.children[scope][key]
		return rec, ok
	}
	recs := r.byName[key]
	if len(recs) == 0 {
		return nil, false
	}
	return recs[0], true
}

// ByNameInNamespace returns the record named browseName whose id lives in
// namespace ns. An unscoped record wins over instance declarations; an
// instance declaration is only returned when no other one shares the name.
func (r *Registry) ByNameInNamespace(ns uint16, browseName string) (*Record, bool) {
	rec, err := r.LookupInNamespace(ns, browseName)
	return rec, err == nil && rec != nil
}

// LookupInNamespace is ByNameInNamespace reporting ErrAmbiguousBrowseName
// when several records fit. It returns nil and no error when none does.
func (r *Registry) LookupInNamespace(ns uint16, browseName string) (*Record, error) {
	var unscoped, scoped []*Record
	for _, rec := range r.byName[nameKey(browseName)] {
		if rec.ID.Namespace() != ns {
			continue
		}
		if rec.Parent.IsNull() {
			unscoped = append(unscoped, rec)
		} else {
			scoped = append(scoped, rec)
		}
	}
	candidates := unscoped
	if len(candidates) == 0 {
		candidates = scoped
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		ids := make([]string, len(candidates))
		for i, rec := range candidates {
			ids[i] = rec.ID.String()
		}
		return nil, errors.Wrapf(ErrAmbiguousBrowseName, "%q names %s", browseName, strings.Join(ids, ", "))
	}
}

// Children returns the records defined in the scope of parent, ordered by id.
func (r *Registry) Children(parent nodeid.NodeID) []*Record {
	scope := r.children[parent]
	out := make([]*Record, 0, len(scope))
	for _, rec := range scope {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// AllOfClass returns the records of class c in node id order. The sequence
// reads the registry lazily and can be iterated any number of times.
func (r *Registry) AllOfClass(c ua.NodeClass) Sequence {
	return Sequence{tree: r.byClass[c]}
}

func (r *Registry) Len() int { return len(r.byID) }

// CountByClass returns the number of records per node class.
func (r *Registry) CountByClass() map[ua.NodeClass]int {
	out := make(map[ua.NodeClass]int, len(r.byClass))
	for c, tree := range r.byClass {
		out[c] = tree.Len()
	}
	return out
}

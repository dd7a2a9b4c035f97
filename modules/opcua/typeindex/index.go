// Package typeindex answers subtype and reference-direction questions about
// the ObjectType, VariableType, DataType and ReferenceType hierarchies.
package typeindex

import (
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/pkg/errors"
)

var (
	ErrCyclicHierarchy      = errors.New("subtype edge would create a cycle")
	ErrConflictingSupertype = errors.New("type already has a different supertype")
	ErrDuplicateSemantics   = errors.New("reference type semantics already defined")
)

// ReferenceSemantics carries the direction metadata of a reference type.
type ReferenceSemantics struct {
	ID          nodeid.NodeID `json:"node_id"`
	Name        string        `json:"name"`
	IsSymmetric bool          `json:"symmetric,omitempty"`
	InverseName string        `json:"inverse_name,omitempty"`
}

// Index is a parent-pointer forest. Subtyping is single-parent, so walking
// parent pointers from any type reaches its root in at most depth steps.
type Index struct {
	parent    map[nodeid.NodeID]nodeid.NodeID
	children  map[nodeid.NodeID][]nodeid.NodeID
	semantics map[nodeid.NodeID]ReferenceSemantics
}

func New() *Index {
	return &Index{
		parent:    make(map[nodeid.NodeID]nodeid.NodeID),
		children:  make(map[nodeid.NodeID][]nodeid.NodeID),
		semantics: make(map[nodeid.NodeID]ReferenceSemantics),
	}
}

// AddSubtype records that child is a direct subtype of parent. The edge is
// refused if parent is already a subtype of child.
func (x *Index) AddSubtype(child, parent nodeid.NodeID) error {
	if cur, ok := x.parent[child]; ok {
		if cur == parent {
			return nil
		}
		return errors.Wrapf(ErrConflictingSupertype, "%s is a subtype of %s, not %s", child, cur, parent)
	}
	if x.IsSubtypeOf(parent, child) {
		return errors.Wrapf(ErrCyclicHierarchy, "%s -> %s", child, parent)
	}
	x.parent[child] = parent
	x.children[parent] = append(x.children[parent], child)
	return nil
}

// IsSubtypeOf reports whether candidate equals ancestor or derives from it.
func (x *Index) IsSubtypeOf(candidate, ancestor nodeid.NodeID) bool {
	cur := candidate
	for {
		if cur == ancestor {
			return true
		}
		p, ok := x.parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
}

// Supertype returns the direct supertype of id.
func (x *Index) Supertype(id nodeid.NodeID) (nodeid.NodeID, bool) {
	p, ok := x.parent[id]
	return p, ok
}

// Subtypes returns the direct subtypes of id in the order they were added.
func (x *Index) Subtypes(id nodeid.NodeID) []nodeid.NodeID {
	kids := x.children[id]
	out := make([]nodeid.NodeID, len(kids))
	copy(out, kids)
	return out
}

// Ancestors returns the supertypes of id, nearest first, ending at the root.
func (x *Index) Ancestors(id nodeid.NodeID) []nodeid.NodeID {
	var out []nodeid.NodeID
	for p, ok := x.parent[id]; ok; p, ok = x.parent[p] {
		out = append(out, p)
	}
	return out
}

// DefineReferenceType stores the semantics of a reference type.
func (x *Index) DefineReferenceType(s ReferenceSemantics) error {
	if _, ok := x.semantics[s.ID]; ok {
		return errors.Wrapf(ErrDuplicateSemantics, "%s", s.ID)
	}
	x.semantics[s.ID] = s
	return nil
}

// ReferenceType returns the semantics stored for refType.
func (x *Index) ReferenceType(refType nodeid.NodeID) (ReferenceSemantics, bool) {
	s, ok := x.semantics[refType]
	return s, ok
}

// InverseReferenceName returns the name of refType read in the inverse
// direction. Symmetric types read the same both ways.
func (x *Index) InverseReferenceName(refType nodeid.NodeID) (string, bool) {
	s, ok := x.semantics[refType]
	if !ok {
		return "", false
	}
	if s.IsSymmetric {
		return s.Name, true
	}
	if s.InverseName == "" {
		return "", false
	}
	return s.InverseName, true
}

// Len returns the number of subtype edges.
func (x *Index) Len() int { return len(x.parent) }

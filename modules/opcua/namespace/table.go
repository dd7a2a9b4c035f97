// Package namespace maps namespace URIs to the local indices used in node ids.
package namespace

import (
	"math"

	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/pkg/errors"
)

// BaseURI is the OPC UA base namespace, always index 0.
const BaseURI = "http://opcfoundation.org/UA/"

var (
	ErrUnknownNamespaceIndex = errors.New("unknown namespace index")
	ErrUnknownNamespaceURI   = errors.New("unknown namespace uri")
	ErrCapacityExceeded      = errors.New("namespace index space exhausted")
	ErrDuplicateNamespace    = errors.New("duplicate namespace uri")
)

// Table is an append-only namespace array. It is not safe for concurrent
// mutation; published models only read from it.
type Table struct {
	uris    []string
	indices map[string]uint16
	limit   int
}

// New returns a table holding only the base namespace.
func New() *Table {
	t := &Table{
		indices: make(map[string]uint16),
		limit:   math.MaxUint16 + 1,
	}
	t.uris = append(t.uris, BaseURI)
	t.indices[BaseURI] = 0
	return t
}

// FromURIs builds a table from a namespace array as read from a server or a
// nodeset file. The first entry must be the base namespace when present.
// A uri listed twice fails with ErrDuplicateNamespace, since merging it would
// shift the index of every later entry.
func FromURIs(uris []string) (*Table, error) {
	t := New()
	for i, uri := range uris {
		if i == 0 && uri == BaseURI {
			continue
		}
		if idx, ok := t.indices[uri]; ok {
			return nil, errors.Wrapf(ErrDuplicateNamespace, "%q at position %d already has index %d", uri, i, idx)
		}
		if _, err := t.Register(uri); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register returns the index of uri, appending it if it is new.
func (t *Table) Register(uri string) (uint16, error) {
	if idx, ok := t.indices[uri]; ok {
		return idx, nil
	}
	if len(t.uris) >= t.limit {
		return 0, errors.Wrapf(ErrCapacityExceeded, "registering %q", uri)
	}
	idx := uint16(len(t.uris))
	t.uris = append(t.uris, uri)
	t.indices[uri] = idx
	return idx, nil
}

func (t *Table) Resolve(index uint16) (string, error) {
	if int(index) >= len(t.uris) {
		return "", errors.Wrapf(ErrUnknownNamespaceIndex, "index %d", index)
	}
	return t.uris[index], nil
}

func (t *Table) ResolveIndex(uri string) (uint16, error) {
	idx, ok := t.indices[uri]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownNamespaceURI, "%q", uri)
	}
	return idx, nil
}

// Remap translates an index assigned by foreign into this table's index for
// the same URI, registering the URI if this table has not seen it yet.
func (t *Table) Remap(foreignIndex uint16, foreign *Table) (uint16, error) {
	uri, err := foreign.Resolve(foreignIndex)
	if err != nil {
		return 0, err
	}
	return t.Register(uri)
}

// ResolveExpanded returns the local node id for e. A namespace URI takes
// precedence over the index carried by the node id.
func (t *Table) ResolveExpanded(e nodeid.ExpandedNodeID) (nodeid.NodeID, error) {
	if e.NamespaceURI != "" {
		idx, err := t.ResolveIndex(e.NamespaceURI)
		if err != nil {
			return nodeid.Null, err
		}
		return e.NodeID.WithNamespace(idx), nil
	}
	if _, err := t.Resolve(e.NodeID.Namespace()); err != nil {
		return nodeid.Null, err
	}
	return e.NodeID, nil
}

// Import is like ResolveExpanded but registers an unknown URI and remaps a bare
// index through foreign. It is used while loading models.
func (t *Table) Import(e nodeid.ExpandedNodeID, foreign *Table) (nodeid.NodeID, error) {
	var (
		idx uint16
		err error
	)
	switch {
	case e.NamespaceURI != "":
		idx, err = t.Register(e.NamespaceURI)
	case foreign != nil:
		idx, err = t.Remap(e.NodeID.Namespace(), foreign)
	default:
		idx = e.NodeID.Namespace()
		_, err = t.Resolve(idx)
	}
	if err != nil {
		return nodeid.Null, err
	}
	return e.NodeID.WithNamespace(idx), nil
}

// Expand attaches the namespace URI of n.
func (t *Table) Expand(n nodeid.NodeID) (nodeid.ExpandedNodeID, error) {
	uri, err := t.Resolve(n.Namespace())
	if err != nil {
		return nodeid.ExpandedNodeID{}, err
	}
	return nodeid.NewExpanded(uri, n), nil
}

func (t *Table) Len() int { return len(t.uris) }

// URIs returns a copy of the namespace array.
func (t *Table) URIs() []string {
	out := make([]string, len(t.uris))
	copy(out, t.uris)
	return out
}

func (t *Table) Clone() *Table {
	c := &Table{
		uris:    t.URIs(),
		indices: make(map[string]uint16, len(t.indices)),
		limit:   t.limit,
	}
	for k, v := range t.indices {
		c.indices[k] = v
	}
	return c
}

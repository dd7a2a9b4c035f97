// Package model builds immutable address-space snapshots out of the
// definitions produced by model sources.
package model

import (
	"time"

	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/comsys/uanodes/modules/opcua/typeindex"
	"github.com/gopcua/opcua/ua"
)

// Model is one complete, read-only generation of the address space
// metadata. It is safe for concurrent use.
type Model struct {
	namespaces namespaceReader
	nodes      *registry.Registry
	types      *typeindex.Index
	BuiltAt    time.Time
}

type namespaceReader interface {
	Resolve(index uint16) (string, error)
	ResolveIndex(uri string) (uint16, error)
	ResolveExpanded(e nodeid.ExpandedNodeID) (nodeid.NodeID, error)
	Expand(n nodeid.NodeID) (nodeid.ExpandedNodeID, error)
	URIs() []string
	Len() int
}

func (m *Model) NamespaceURI(index uint16) (string, error) { return m.namespaces.Resolve(index) }

func (m *Model) NamespaceIndex(uri string) (uint16, error) { return m.namespaces.ResolveIndex(uri) }

func (m *Model) NamespaceURIs() []string { return m.namespaces.URIs() }

func (m *Model) ResolveExpanded(e nodeid.ExpandedNodeID) (nodeid.NodeID, error) {
	return m.namespaces.ResolveExpanded(e)
}

func (m *Model) Expand(n nodeid.NodeID) (nodeid.ExpandedNodeID, error) {
	return m.namespaces.Expand(n)
}

func (m *Model) ByID(id nodeid.NodeID) (*registry.Record, bool) { return m.nodes.ByID(id) }

func (m *Model) ByName(browseName string, scope nodeid.NodeID) (*registry.Record, bool) {
	return m.nodes.ByName(browseName, scope)
}

func (m *Model) ByNameInNamespace(ns uint16, browseName string) (*registry.Record, bool) {
	return m.nodes.ByNameInNamespace(ns, browseName)
}

func (m *Model) LookupInNamespace(ns uint16, browseName string) (*registry.Record, error) {
	return m.nodes.LookupInNamespace(ns, browseName)
}

func (m *Model) Children(parent nodeid.NodeID) []*registry.Record { return m.nodes.Children(parent) }

func (m *Model) AllOfClass(c ua.NodeClass) registry.Sequence { return m.nodes.AllOfClass(c) }

func (m *Model) CountByClass() map[ua.NodeClass]int { return m.nodes.CountByClass() }

func (m *Model) Len() int { return m.nodes.Len() }

func (m *Model) IsSubtypeOf(candidate, ancestor nodeid.NodeID) bool {
	return m.types.IsSubtypeOf(candidate, ancestor)
}

func (m *Model) Supertype(id nodeid.NodeID) (nodeid.NodeID, bool) { return m.types.Supertype(id) }

func (m *Model) Subtypes(id nodeid.NodeID) []nodeid.NodeID { return m.types.Subtypes(id) }

func (m *Model) Ancestors(id nodeid.NodeID) []nodeid.NodeID { return m.types.Ancestors(id) }

func (m *Model) ReferenceType(id nodeid.NodeID) (typeindex.ReferenceSemantics, bool) {
	return m.types.ReferenceType(id)
}

func (m *Model) InverseReferenceName(refType nodeid.NodeID) (string, bool) {
	return m.types.InverseReferenceName(refType)
}

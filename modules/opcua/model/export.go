package model

import (
	"github.com/comsys/uanodes/modules/opcua/namespace"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
)

// Batch returns the nodes of m outside the base namespace as one batch
// carrying m's namespace array, so that loading it into a fresh builder
// reproduces them. Types hang below their supertype; instance declarations
// below their scope with the default reference type.
func (m *Model) Batch(name string) *Batch {
	tbl, err := namespace.FromURIs(m.NamespaceURIs())
	if err != nil {
		// the array came out of a table, so it is valid
		panic(err)
	}
	b := &Batch{Name: name, Namespaces: tbl}
	for _, c := range registry.NodeClasses {
		m.AllOfClass(c).Each(func(rec *registry.Record) bool {
			if rec.ID.Namespace() == 0 {
				return true
			}
			b.Definitions = append(b.Definitions, m.definition(rec))
			return true
		})
	}
	return b
}

func (m *Model) definition(rec *registry.Record) Definition {
	def := Definition{
		ID:         nodeid.Expand(rec.ID),
		BrowseName: rec.BrowseName,
		NodeClass:  rec.NodeClass,
		IsAbstract: rec.IsAbstract,
	}
	if rec.DisplayName != rec.BrowseName {
		def.DisplayName = rec.DisplayName
	}
	if !rec.TypeDefinition.IsNull() {
		def.TypeDefinition = nodeid.Expand(rec.TypeDefinition)
	}
	if super, ok := m.Supertype(rec.ID); ok {
		def.Parent = &Relation{Parent: nodeid.Expand(super), ReferenceType: nodeid.Expand(HasSubtype)}
	} else if !rec.Parent.IsNull() {
		def.Parent = &Relation{Parent: nodeid.Expand(rec.Parent)}
	}
	if sem, ok := m.ReferenceType(rec.ID); ok {
		def.IsSymmetric = sem.IsSymmetric
		if !sem.IsSymmetric {
			def.InverseName = sem.InverseName
		}
	}
	return def
}

// Package store persists model batches so that a model imported once, e.g.
// from a live server, can be rebuilt without repeating the import.
package store

import (
	"time"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("stored model not found")
	ErrBadDocument = errors.New("malformed stored model")
)

// nodeDoc is one definition. Node ids are kept in their text form and are
// relative to the namespace array of the batch they belong to.
type nodeDoc struct {
	Model          string `bson:"model,omitempty"`
	Generation     string `bson:"generation,omitempty"`
	Seq            int    `bson:"seq"`
	ID             string `bson:"id"`
	BrowseName     string `bson:"browse_name"`
	DisplayName    string `bson:"display_name,omitempty"`
	Class          string `bson:"class"`
	Abstract       bool   `bson:"abstract,omitempty"`
	Parent         string `bson:"parent,omitempty"`
	Reference      string `bson:"reference,omitempty"`
	TypeDefinition string `bson:"type_definition,omitempty"`
	Symmetric      bool   `bson:"symmetric,omitempty"`
	InverseName    string `bson:"inverse_name,omitempty"`
}

type batchDoc struct {
	Name       string    `bson:"_id"`
	Namespaces []string  `bson:"namespaces"`
	SavedAt    time.Time `bson:"saved_at"`
	Generation string    `bson:"generation,omitempty"`
	Nodes      []nodeDoc `bson:"nodes,omitempty"`
}

func encodeBatch(name string, b *model.Batch) batchDoc {
	doc := batchDoc{Name: name, SavedAt: time.Now().UTC()}
	if b.Namespaces != nil {
		doc.Namespaces = b.Namespaces.URIs()[1:]
	}
	for i, def := range b.Definitions {
		n := nodeDoc{
			Seq:         i,
			ID:          def.ID.String(),
			BrowseName:  def.BrowseName,
			DisplayName: def.DisplayName,
			Class:       registry.ClassName(def.NodeClass),
			Abstract:    def.IsAbstract,
			Symmetric:   def.IsSymmetric,
			InverseName: def.InverseName,
		}
		if def.Parent != nil {
			n.Parent = def.Parent.Parent.String()
			if !def.Parent.ReferenceType.IsNull() {
				n.Reference = def.Parent.ReferenceType.String()
			}
		}
		if !def.TypeDefinition.IsNull() {
			n.TypeDefinition = def.TypeDefinition.String()
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	return doc
}

func optionalID(s string) (nodeid.ExpandedNodeID, error) {
	if s == "" {
		return nodeid.ExpandedNodeID{}, nil
	}
	return nodeid.ParseExpanded(s)
}

func decodeBatch(source string, doc batchDoc) (*model.Batch, error) {
	b, err := model.NewBatch(source, doc.Namespaces...)
	if err != nil {
		return nil, errors.Wrapf(ErrBadDocument, "%s: %v", source, err)
	}
	for _, n := range doc.Nodes {
		def, err := n.definition()
		if err != nil {
			return nil, errors.Wrapf(ErrBadDocument, "%s: node %d: %v", source, n.Seq, err)
		}
		b.Definitions = append(b.Definitions, def)
	}
	return b, nil
}

func (n nodeDoc) definition() (model.Definition, error) {
	def := model.Definition{
		BrowseName:  n.BrowseName,
		DisplayName: n.DisplayName,
		IsAbstract:  n.Abstract,
		IsSymmetric: n.Symmetric,
		InverseName: n.InverseName,
	}
	var ok bool
	if def.NodeClass, ok = registry.ParseClass(n.Class); !ok {
		return def, errors.Errorf("unknown node class %q", n.Class)
	}
	var err error
	if def.ID, err = nodeid.ParseExpanded(n.ID); err != nil {
		return def, err
	}
	if def.TypeDefinition, err = optionalID(n.TypeDefinition); err != nil {
		return def, err
	}
	if n.Parent != "" {
		rel := &model.Relation{}
		if rel.Parent, err = nodeid.ParseExpanded(n.Parent); err != nil {
			return def, err
		}
		if rel.ReferenceType, err = optionalID(n.Reference); err != nil {
			return def, err
		}
		def.Parent = rel
	}
	return def, nil
}

package model

import (
	"context"

	"github.com/comsys/uanodes/modules/opcua/namespace"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/ua"
)

// Relation ties a definition to the node it hangs below.
type Relation struct {
	Parent nodeid.ExpandedNodeID
	// ReferenceType is HasSubtype for types and a hierarchical reference such
	// as HasComponent for instance declarations. Null means HasComponent.
	ReferenceType nodeid.ExpandedNodeID
}

// Definition is one node as produced by a model source.
type Definition struct {
	ID             nodeid.ExpandedNodeID
	BrowseName     string
	DisplayName    string
	NodeClass      ua.NodeClass
	IsAbstract     bool
	Parent         *Relation
	TypeDefinition nodeid.ExpandedNodeID

	// reference types only
	IsSymmetric bool
	InverseName string
}

// Batch is the output of one source. Node ids without a namespace URI are
// interpreted against Namespaces, the source's own namespace array.
type Batch struct {
	Name        string
	Namespaces  *namespace.Table
	Definitions []Definition
}

// NewBatch returns an empty batch whose namespace array holds uris after the
// base namespace, in order.
func NewBatch(name string, uris ...string) (*Batch, error) {
	tbl, err := namespace.FromURIs(uris)
	if err != nil {
		return nil, err
	}
	return &Batch{Name: name, Namespaces: tbl}, nil
}

// Source produces a batch of definitions, e.g. by reading a nodeset file or
// browsing a live server.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Batch, error)
}

// BatchSource serves an already loaded batch.
type BatchSource struct {
	Batch *Batch
}

func (s BatchSource) Name() string { return s.Batch.Name }

func (s BatchSource) Load(ctx context.Context) (*Batch, error) {
	return s.Batch, nil
}

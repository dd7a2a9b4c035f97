package model

import (
	"context"
	"fmt"
	"time"

	"github.com/comsys/uanodes/modules/opcua/namespace"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/comsys/uanodes/modules/opcua/typeindex"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrDanglingReference = errors.New("reference to undefined node")
	ErrInvalidSubtype    = errors.New("subtype of a different node class")
	ErrBuilderSealed     = errors.New("builder already built")
)

// DefinitionError locates a fatal load error within a batch.
type DefinitionError struct {
	Batch string
	Index int
	ID    nodeid.ExpandedNodeID
	Err   error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s: definition %d (%s): %s", e.Batch, e.Index, e.ID, e.Err)
}

func (e *DefinitionError) Cause() error  { return e.Err }
func (e *DefinitionError) Unwrap() error { return e.Err }

type edgeCheck struct {
	batch   string
	node    nodeid.NodeID
	target  nodeid.NodeID
	refType nodeid.NodeID
	subtype bool
	typeDef bool
}

// Builder assembles a Model. It is used by a single goroutine; the Model it
// returns is immutable.
type Builder struct {
	namespaces *namespace.Table
	nodes      *registry.Registry
	types      *typeindex.Index
	base       map[nodeid.NodeID]bool
	edges      []edgeCheck
	sealed     bool
	failed     error // first AddBatch error, repeated by every later call
	logger     *log.Entry
}

type Option func(*Builder) error

// WithoutBase skips the built-in base namespace nodes, for loading the full
// base nodeset from a file instead.
func WithoutBase() Option {
	return func(b *Builder) error {
		b.base = nil
		return nil
	}
}

// WithServerURI reserves namespace index 1 for the local server.
func WithServerURI(uri string) Option {
	return func(b *Builder) error {
		idx, err := b.namespaces.Register(uri)
		if err != nil {
			return err
		}
		if idx != 1 {
			return errors.Errorf("server namespace %q registered at index %d, want 1", uri, idx)
		}
		return nil
	}
}

func WithLogger(l *log.Entry) Option {
	return func(b *Builder) error {
		b.logger = l
		return nil
	}
}

// NewBuilder returns a builder holding the base namespace nodes.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		namespaces: namespace.New(),
		nodes:      registry.New(),
		types:      typeindex.New(),
		base:       make(map[nodeid.NodeID]bool),
		logger:     log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.base != nil {
		if err := b.AddBatch(BaseBatch()); err != nil {
			return nil, errors.Wrap(err, "base namespace")
		}
		for _, c := range registry.NodeClasses {
			b.nodes.AllOfClass(c).Each(func(r *registry.Record) bool {
				b.base[r.ID] = true
				return true
			})
		}
	}
	return b, nil
}

// Namespaces exposes the namespace table so callers can register URIs in a
// fixed order before adding batches.
func (b *Builder) Namespaces() *namespace.Table { return b.namespaces }

// AddBatch defines every node of batch. Any error is fatal for the model
// being built: a batch may be left partly defined, so later AddBatch and
// Build calls return the same error.
func (b *Builder) AddBatch(batch *Batch) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if b.failed != nil {
		return b.failed
	}
	if err := b.addBatch(batch); err != nil {
		b.failed = err
		return err
	}
	b.logger.WithField("source", batch.Name).Debugf("Added %d definitions", len(batch.Definitions))
	return nil
}

func (b *Builder) addBatch(batch *Batch) error {
	// namespaces are registered in the batch's order, not in the order
	// definitions happen to use them
	if batch.Namespaces != nil {
		for _, uri := range batch.Namespaces.URIs()[1:] {
			if _, err := b.namespaces.Register(uri); err != nil {
				return errors.Wrapf(err, "%s: namespace table", batch.Name)
			}
		}
	}
	for i, def := range batch.Definitions {
		if err := b.add(batch, def); err != nil {
			return &DefinitionError{Batch: batch.Name, Index: i, ID: def.ID, Err: err}
		}
	}
	return nil
}

func (b *Builder) importID(batch *Batch, e nodeid.ExpandedNodeID) (nodeid.NodeID, error) {
	return b.namespaces.Import(e, batch.Namespaces)
}

func (b *Builder) add(batch *Batch, def Definition) error {
	nid, err := b.importID(batch, def.ID)
	if err != nil {
		return err
	}

	var parent, refType nodeid.NodeID
	if def.Parent != nil {
		if parent, err = b.importID(batch, def.Parent.Parent); err != nil {
			return err
		}
		refType = HasComponent
		if !def.Parent.ReferenceType.IsNull() {
			if refType, err = b.importID(batch, def.Parent.ReferenceType); err != nil {
				return err
			}
		}
	}
	subtype := def.Parent != nil && refType == HasSubtype

	rec := registry.Record{
		ID:          nid,
		BrowseName:  def.BrowseName,
		NodeClass:   def.NodeClass,
		DisplayName: def.DisplayName,
		IsAbstract:  def.IsAbstract,
	}
	if !def.TypeDefinition.IsNull() {
		if rec.TypeDefinition, err = b.importID(batch, def.TypeDefinition); err != nil {
			return err
		}
	}

	scope := nodeid.Null
	if def.Parent != nil && !subtype {
		scope = parent
	}

	if existing, ok := b.nodes.ByID(nid); ok && b.base[nid] {
		// a source restating a built-in base node
		if existing.BrowseName != rec.BrowseName || existing.NodeClass != rec.NodeClass {
			return errors.Wrapf(registry.ErrDuplicateNodeID, "%s conflicts with base node %q", nid, existing.BrowseName)
		}
	} else {
		if subtype && !registry.IsTypeClass(rec.NodeClass) {
			return errors.Wrapf(ErrInvalidSubtype, "%s is a %s", nid, registry.ClassName(rec.NodeClass))
		}
		if _, err := b.nodes.Define(rec, scope); err != nil {
			return err
		}
		if rec.NodeClass == ua.NodeClassReferenceType {
			err := b.types.DefineReferenceType(typeindex.ReferenceSemantics{
				ID:          nid,
				Name:        def.BrowseName,
				IsSymmetric: def.IsSymmetric,
				InverseName: def.InverseName,
			})
			if err != nil {
				return err
			}
		}
	}

	if def.Parent != nil {
		if subtype {
			if err := b.types.AddSubtype(nid, parent); err != nil {
				return err
			}
		}
		b.edges = append(b.edges, edgeCheck{batch: batch.Name, node: nid, target: parent, refType: refType, subtype: subtype})
	}
	if !rec.TypeDefinition.IsNull() {
		b.edges = append(b.edges, edgeCheck{batch: batch.Name, node: nid, target: rec.TypeDefinition, typeDef: true})
	}
	return nil
}

// Build checks that every referenced node exists and seals the builder.
func (b *Builder) Build() (*Model, error) {
	if b.sealed {
		return nil, ErrBuilderSealed
	}
	if b.failed != nil {
		return nil, b.failed
	}
	for _, e := range b.edges {
		if err := b.checkEdge(e); err != nil {
			return nil, errors.Wrapf(err, "%s: %s", e.batch, e.node)
		}
	}
	b.sealed = true
	m := &Model{
		namespaces: b.namespaces,
		nodes:      b.nodes,
		types:      b.types,
		BuiltAt:    time.Now(),
	}
	b.logger.WithField("nodes", m.Len()).WithField("namespaces", m.namespaces.Len()).Info("Model built")
	return m, nil
}

func (b *Builder) checkEdge(e edgeCheck) error {
	target, ok := b.nodes.ByID(e.target)
	if !ok {
		return errors.Wrapf(ErrDanglingReference, "target %s", e.target)
	}
	if e.typeDef {
		if target.NodeClass != ua.NodeClassObjectType && target.NodeClass != ua.NodeClassVariableType {
			return errors.Wrapf(ErrDanglingReference, "type definition %s is a %s", e.target, registry.ClassName(target.NodeClass))
		}
		return nil
	}
	ref, ok := b.nodes.ByID(e.refType)
	if !ok || ref.NodeClass != ua.NodeClassReferenceType {
		return errors.Wrapf(ErrDanglingReference, "reference type %s", e.refType)
	}
	if e.subtype {
		node, _ := b.nodes.ByID(e.node)
		if node.NodeClass != target.NodeClass {
			return errors.Wrapf(ErrInvalidSubtype, "%s (%s) below %s (%s)", e.node, registry.ClassName(node.NodeClass), e.target, registry.ClassName(target.NodeClass))
		}
	}
	return nil
}

// Load builds a model from sources in order.
func Load(ctx context.Context, sources []Source, opts ...Option) (*Model, error) {
	b, err := NewBuilder(opts...)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		tStart := time.Now()
		batch, err := src.Load(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", src.Name())
		}
		if err := b.AddBatch(batch); err != nil {
			return nil, err
		}
		b.logger.WithField("source", src.Name()).Infof("Loaded %d definitions in %s", len(batch.Definitions), time.Since(tStart))
	}
	return b.Build()
}

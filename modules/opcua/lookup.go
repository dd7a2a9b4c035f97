// Package opcua serves symbolic lookups over OPC UA address space models.
//
// A Lookup holds the current model generation. Readers never lock: every
// query runs against one immutable Snapshot, and Reload publishes the next
// generation with a single atomic swap.
package opcua

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNoModel      = errors.New("no model loaded")
)

// Snapshot is one model generation. All of its queries see the same model.
type Snapshot struct {
	*model.Model
	Generation uint64
}

// ResolveConstant returns the id of the node named browseName in the
// namespace uri. Names of instance declarations may be given as the
// underscore-joined path below their type, e.g.
// "MotionDeviceSystemType_MotionDevices". A bare name shared by several
// instance declarations fails with registry.ErrAmbiguousBrowseName.
func (s *Snapshot) ResolveConstant(namespaceURI, browseName string) (nodeid.NodeID, error) {
	idx, err := s.NamespaceIndex(namespaceURI)
	if err != nil {
		return nodeid.Null, err
	}
	rec, lookupErr := s.LookupInNamespace(idx, browseName)
	if rec != nil {
		return rec.ID, nil
	}
	if strings.Contains(browseName, "_") {
		if n, err := s.ResolvePath(namespaceURI, strings.Split(browseName, "_")...); err == nil {
			return n, nil
		}
	}
	if lookupErr != nil {
		return nodeid.Null, errors.Wrapf(lookupErr, "in %s, use the Type_Member form", namespaceURI)
	}
	return nodeid.Null, errors.Wrapf(ErrNodeNotFound, "%q in %s", browseName, namespaceURI)
}

// ResolvePath resolves the first element in namespaceURI and every further
// element among the children of the previous one.
func (s *Snapshot) ResolvePath(namespaceURI string, path ...string) (nodeid.NodeID, error) {
	if len(path) == 0 {
		return nodeid.Null, errors.Wrap(ErrNodeNotFound, "empty browse path")
	}
	idx, err := s.NamespaceIndex(namespaceURI)
	if err != nil {
		return nodeid.Null, err
	}
	rec, err := s.LookupInNamespace(idx, path[0])
	if err != nil {
		return nodeid.Null, err
	}
	if rec == nil {
		return nodeid.Null, errors.Wrapf(ErrNodeNotFound, "%q in %s", path[0], namespaceURI)
	}
	for i, name := range path[1:] {
		child, ok := s.ByName(name, rec.ID)
		if !ok {
			return nodeid.Null, errors.Wrapf(ErrNodeNotFound, "%q below %s", strings.Join(path[:i+2], "/"), rec.ID)
		}
		rec = child
	}
	return rec.ID, nil
}

// Describe is ByID with an error for unknown ids.
func (s *Snapshot) Describe(id nodeid.NodeID) (*registry.Record, error) {
	rec, ok := s.ByID(id)
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "%s", id)
	}
	return rec, nil
}

// DescribeExpanded resolves e against the namespace table and describes it.
func (s *Snapshot) DescribeExpanded(e nodeid.ExpandedNodeID) (*registry.Record, error) {
	id, err := s.ResolveExpanded(e)
	if err != nil {
		return nil, err
	}
	return s.Describe(id)
}

// BelongsToType reports whether node is typeID or a subtype of it, or is
// declared within such a type or within an instance of one. It is the check
// access control uses to decide whether a method is part of a type.
func (s *Snapshot) BelongsToType(node, typeID nodeid.NodeID) bool {
	seen := make(map[nodeid.NodeID]bool)
	for cur := node; !cur.IsNull() && !seen[cur]; {
		seen[cur] = true
		rec, ok := s.ByID(cur)
		if !ok {
			return false
		}
		if registry.IsTypeClass(rec.NodeClass) && s.IsSubtypeOf(rec.ID, typeID) {
			return true
		}
		if !rec.TypeDefinition.IsNull() && s.IsSubtypeOf(rec.TypeDefinition, typeID) {
			return true
		}
		cur = rec.Parent
	}
	return false
}

// Lookup is the entry point decoders, browse handlers and access checks
// use. The zero value has no model; queries then fail with ErrNoModel or
// report not found.
type Lookup struct {
	current atomic.Value // *Snapshot
	mu      sync.Mutex   // serialises Reload
	metrics *Metrics
}

type LookupOption func(*Lookup)

// WithMetrics records lookups and reloads in m.
func WithMetrics(m *Metrics) LookupOption {
	return func(l *Lookup) { l.metrics = m }
}

func NewLookup(m *model.Model, opts ...LookupOption) *Lookup {
	l := new(Lookup)
	for _, opt := range opts {
		opt(l)
	}
	l.Reload(m)
	return l
}

// Reload publishes m as the next generation and returns its number.
// Queries already running finish on the generation they started with.
// A nil model is ignored.
func (l *Lookup) Reload(m *model.Model) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var gen uint64 = 1
	if cur, ok := l.current.Load().(*Snapshot); ok {
		if m == nil {
			return cur.Generation
		}
		gen = cur.Generation + 1
	} else if m == nil {
		return 0
	}
	l.current.Store(&Snapshot{Model: m, Generation: gen})
	l.metrics.observeReload(m, gen)
	return gen
}

// Snapshot pins the current generation, or returns nil before the first
// Reload. Use it to run several queries against one consistent model.
func (l *Lookup) Snapshot() *Snapshot {
	s, _ := l.current.Load().(*Snapshot)
	return s
}

func (l *Lookup) Generation() uint64 {
	if s := l.Snapshot(); s != nil {
		return s.Generation
	}
	return 0
}

func (l *Lookup) snapshot() (*Snapshot, error) {
	s := l.Snapshot()
	if s == nil {
		return nil, ErrNoModel
	}
	return s, nil
}

func (l *Lookup) ResolveConstant(namespaceURI, browseName string) (nodeid.NodeID, error) {
	s, err := l.snapshot()
	if err != nil {
		return nodeid.Null, err
	}
	n, err := s.ResolveConstant(namespaceURI, browseName)
	l.metrics.observe("resolve_constant", err == nil)
	return n, err
}

func (l *Lookup) ResolvePath(namespaceURI string, path ...string) (nodeid.NodeID, error) {
	s, err := l.snapshot()
	if err != nil {
		return nodeid.Null, err
	}
	n, err := s.ResolvePath(namespaceURI, path...)
	l.metrics.observe("resolve_path", err == nil)
	return n, err
}

func (l *Lookup) ResolveExpanded(e nodeid.ExpandedNodeID) (nodeid.NodeID, error) {
	s, err := l.snapshot()
	if err != nil {
		return nodeid.Null, err
	}
	n, err := s.ResolveExpanded(e)
	l.metrics.observe("resolve_expanded", err == nil)
	return n, err
}

func (l *Lookup) Describe(id nodeid.NodeID) (*registry.Record, error) {
	s, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	rec, err := s.Describe(id)
	l.metrics.observe("describe", err == nil)
	return rec, err
}

func (l *Lookup) ByID(id nodeid.NodeID) (*registry.Record, bool) {
	s := l.Snapshot()
	if s == nil {
		return nil, false
	}
	rec, ok := s.ByID(id)
	l.metrics.observe("by_id", ok)
	return rec, ok
}

func (l *Lookup) ByName(browseName string, scope nodeid.NodeID) (*registry.Record, bool) {
	s := l.Snapshot()
	if s == nil {
		return nil, false
	}
	rec, ok := s.ByName(browseName, scope)
	l.metrics.observe("by_name", ok)
	return rec, ok
}

// AllOfClass returns an empty sequence before the first Reload.
func (l *Lookup) AllOfClass(c ua.NodeClass) registry.Sequence {
	s := l.Snapshot()
	if s == nil {
		return registry.Sequence{}
	}
	l.metrics.observe("all_of_class", true)
	return s.AllOfClass(c)
}

func (l *Lookup) IsSubtypeOf(candidate, ancestor nodeid.NodeID) bool {
	s := l.Snapshot()
	if s == nil {
		return false
	}
	ok := s.IsSubtypeOf(candidate, ancestor)
	l.metrics.observeAnswer("is_subtype_of", ok)
	return ok
}

func (l *Lookup) InverseReferenceName(refType nodeid.NodeID) (string, bool) {
	s := l.Snapshot()
	if s == nil {
		return "", false
	}
	name, ok := s.InverseReferenceName(refType)
	l.metrics.observe("inverse_reference_name", ok)
	return name, ok
}

func (l *Lookup) BelongsToType(node, typeID nodeid.NodeID) bool {
	s := l.Snapshot()
	if s == nil {
		return false
	}
	ok := s.BelongsToType(node, typeID)
	l.metrics.observeAnswer("belongs_to_type", ok)
	return ok
}

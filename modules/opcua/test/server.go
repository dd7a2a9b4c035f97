package opcua_test_infra

import (
	"fmt"
	"sync"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

// Node is one node of the fake address space.
type Node struct {
	ID             *ua.NodeID
	Class          ua.NodeClass
	BrowseName     string
	IsAbstract     bool
	Symmetric      bool
	InverseName    string
	TypeDefinition *ua.NodeID
}

type reference struct {
	refType *ua.NodeID
	target  *Node
}

// Server is an in-memory OPC UA address space answering Browse,
// BrowseNext and Read the way a real server does, including continuation
// points and operation limits.
type Server struct {
	// PageSize limits the references of one browse result; the rest is
	// returned through continuation points. 0 means unlimited.
	PageSize int
	// MaxOperations rejects requests with more operations with
	// BadTooManyOperations. 0 means unlimited.
	MaxOperations int
	// HideNodeClass leaves the node class out of browse results so that
	// clients have to read it.
	HideNodeClass bool

	BrowseRequests     int
	BrowseNextRequests int
	ReadRequests       int
	Released           int

	mu            sync.Mutex
	namespaces    []string
	nodes         map[string]*Node
	refs          map[string][]reference
	supertype     map[string]string
	continuations map[string][]*ua.ReferenceDescription
	nextCP        int
}

// baseNodes is the part of namespace 0 every fake server carries.
var baseNodes = []struct {
	id, parent, ref uint32
	name            string
	class           ua.NodeClass
	abstract        bool
	symmetric       bool
	inverse         string
}{
	{id: id.References, name: "References", class: ua.NodeClassReferenceType, abstract: true, symmetric: true},
	{id: id.HierarchicalReferences, parent: id.References, ref: id.HasSubtype, name: "HierarchicalReferences", class: ua.NodeClassReferenceType, abstract: true, inverse: "InverseHierarchicalReferences"},
	{id: id.NonHierarchicalReferences, parent: id.References, ref: id.HasSubtype, name: "NonHierarchicalReferences", class: ua.NodeClassReferenceType, abstract: true, symmetric: true},
	{id: id.HasChild, parent: id.HierarchicalReferences, ref: id.HasSubtype, name: "HasChild", class: ua.NodeClassReferenceType, abstract: true, inverse: "ChildOf"},
	{id: id.Organizes, parent: id.HierarchicalReferences, ref: id.HasSubtype, name: "Organizes", class: ua.NodeClassReferenceType, inverse: "OrganizedBy"},
	{id: id.Aggregates, parent: id.HasChild, ref: id.HasSubtype, name: "Aggregates", class: ua.NodeClassReferenceType, abstract: true, inverse: "AggregatedBy"},
	{id: id.HasSubtype, parent: id.HasChild, ref: id.HasSubtype, name: "HasSubtype", class: ua.NodeClassReferenceType, inverse: "SubtypeOf"},
	{id: id.HasComponent, parent: id.Aggregates, ref: id.HasSubtype, name: "HasComponent", class: ua.NodeClassReferenceType, inverse: "ComponentOf"},
	{id: id.HasProperty, parent: id.Aggregates, ref: id.HasSubtype, name: "HasProperty", class: ua.NodeClassReferenceType, inverse: "PropertyOf"},
	{id: id.HasTypeDefinition, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, name: "HasTypeDefinition", class: ua.NodeClassReferenceType, inverse: "TypeDefinitionOf"},
	{id: id.BaseObjectType, name: "BaseObjectType", class: ua.NodeClassObjectType},
	{id: id.FolderType, parent: id.BaseObjectType, ref: id.HasSubtype, name: "FolderType", class: ua.NodeClassObjectType},
	{id: id.BaseVariableType, name: "BaseVariableType", class: ua.NodeClassVariableType, abstract: true},
	{id: id.BaseDataVariableType, parent: id.BaseVariableType, ref: id.HasSubtype, name: "BaseDataVariableType", class: ua.NodeClassVariableType},
	{id: id.PropertyType, parent: id.BaseVariableType, ref: id.HasSubtype, name: "PropertyType", class: ua.NodeClassVariableType},
	{id: id.BaseDataType, name: "BaseDataType", class: ua.NodeClassDataType, abstract: true},
	{id: id.Boolean, parent: id.BaseDataType, ref: id.HasSubtype, name: "Boolean", class: ua.NodeClassDataType},
	{id: id.String, parent: id.BaseDataType, ref: id.HasSubtype, name: "String", class: ua.NodeClassDataType},
}

// NewServer returns a server with a minimal base namespace and the given
// namespace URIs at indices 1, 2, ...
func NewServer(uris ...string) *Server {
	s := &Server{
		namespaces:    append([]string{"http://opcfoundation.org/UA/"}, uris...),
		nodes:         make(map[string]*Node),
		refs:          make(map[string][]reference),
		supertype:     make(map[string]string),
		continuations: make(map[string][]*ua.ReferenceDescription),
	}
	for _, n := range baseNodes {
		node := Node{
			ID:          ua.NewNumericNodeID(0, n.id),
			Class:       n.class,
			BrowseName:  n.name,
			IsAbstract:  n.abstract,
			Symmetric:   n.symmetric,
			InverseName: n.inverse,
		}
		var parent *ua.NodeID
		if n.parent != 0 {
			parent = ua.NewNumericNodeID(0, n.parent)
		}
		s.AddNode(node, parent, n.ref)
	}
	return s
}

// NewRoboticsServer serves the Robotics fixture with the server URI at
// index 1, DI at 2 and Robotics at 3.
func NewRoboticsServer() *Server {
	s := NewServer(ServerURI, DIURI, RoboticsURI)
	shift := func(ns uint16) uint16 {
		if ns == NsBase {
			return 0
		}
		return ns + 1
	}
	for _, f := range Fixture {
		n := Node{
			ID:          ua.NewNumericNodeID(shift(f.NS), f.ID),
			Class:       f.Class,
			BrowseName:  f.Name,
			IsAbstract:  f.Abstract,
			Symmetric:   f.Symmetric,
			InverseName: f.Inverse,
		}
		if f.TypeDef != 0 {
			n.TypeDefinition = ua.NewNumericNodeID(0, f.TypeDef)
		}
		s.AddNode(n, ua.NewNumericNodeID(shift(f.ParentNS), f.ParentID), f.Ref)
	}
	return s
}

// AddNode adds n with a forward reference of type refType from parent.
func (s *Server) AddNode(n Node, parent *ua.NodeID, refType uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := n
	s.nodes[n.ID.String()] = &node
	if parent == nil {
		return
	}
	rt := ua.NewNumericNodeID(0, refType)
	s.refs[parent.String()] = append(s.refs[parent.String()], reference{refType: rt, target: &node})
	if refType == id.HasSubtype {
		s.supertype[n.ID.String()] = parent.String()
	}
}

func (s *Server) isSubtype(refType, of *ua.NodeID, includeSubtypes bool) bool {
	if of == nil {
		return true
	}
	want := of.String()
	cur := refType.String()
	for {
		if cur == want {
			return true
		}
		if !includeSubtypes {
			return false
		}
		next, ok := s.supertype[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

func (s *Server) describe(r reference) *ua.ReferenceDescription {
	d := &ua.ReferenceDescription{
		ReferenceTypeID: r.refType,
		IsForward:       true,
		NodeID:          &ua.ExpandedNodeID{NodeID: r.target.ID},
		BrowseName:      &ua.QualifiedName{NamespaceIndex: r.target.ID.Namespace(), Name: r.target.BrowseName},
		DisplayName:     &ua.LocalizedText{Text: r.target.BrowseName},
	}
	if !s.HideNodeClass {
		d.NodeClass = r.target.Class
	}
	if r.target.TypeDefinition != nil {
		d.TypeDefinition = &ua.ExpandedNodeID{NodeID: r.target.TypeDefinition}
	}
	return d
}

// page returns the first page of refs and stores the rest under a new
// continuation point.
func (s *Server) page(refs []*ua.ReferenceDescription) *ua.BrowseResult {
	res := &ua.BrowseResult{StatusCode: ua.StatusOK, References: refs}
	if s.PageSize <= 0 || len(refs) <= s.PageSize {
		return res
	}
	s.nextCP++
	cp := fmt.Sprintf("cp-%d", s.nextCP)
	s.continuations[cp] = refs[s.PageSize:]
	res.References = refs[:s.PageSize]
	res.ContinuationPoint = []byte(cp)
	return res
}

func (s *Server) Browse(req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BrowseRequests++
	if s.MaxOperations > 0 && len(req.NodesToBrowse) > s.MaxOperations {
		return nil, ua.StatusBadTooManyOperations
	}
	resp := &ua.BrowseResponse{}
	for _, desc := range req.NodesToBrowse {
		if _, ok := s.nodes[desc.NodeID.String()]; !ok {
			resp.Results = append(resp.Results, &ua.BrowseResult{StatusCode: ua.StatusBadNodeIDUnknown})
			continue
		}
		var refs []*ua.ReferenceDescription
		for _, r := range s.refs[desc.NodeID.String()] {
			if desc.BrowseDirection == ua.BrowseDirectionInverse {
				continue
			}
			if s.isSubtype(r.refType, desc.ReferenceTypeID, desc.IncludeSubtypes) {
				refs = append(refs, s.describe(r))
			}
		}
		resp.Results = append(resp.Results, s.page(refs))
	}
	return resp, nil
}

func (s *Server) BrowseNext(req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BrowseNextRequests++
	resp := &ua.BrowseNextResponse{}
	for _, cp := range req.ContinuationPoints {
		refs, ok := s.continuations[string(cp)]
		if !ok {
			resp.Results = append(resp.Results, &ua.BrowseResult{StatusCode: ua.StatusBadContinuationPointInvalid})
			continue
		}
		delete(s.continuations, string(cp))
		if req.ReleaseContinuationPoints {
			s.Released++
			resp.Results = append(resp.Results, &ua.BrowseResult{StatusCode: ua.StatusOK})
			continue
		}
		resp.Results = append(resp.Results, s.page(refs))
	}
	return resp, nil
}

// OpenContinuationPoints returns the number of continuation points neither
// consumed nor released.
func (s *Server) OpenContinuationPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.continuations)
}

func (s *Server) Read(req *ua.ReadRequest) (*ua.ReadResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadRequests++
	if s.MaxOperations > 0 && len(req.NodesToRead) > s.MaxOperations {
		return nil, ua.StatusBadTooManyOperations
	}
	resp := &ua.ReadResponse{}
	for _, rv := range req.NodesToRead {
		resp.Results = append(resp.Results, s.read(rv))
	}
	return resp, nil
}

func (s *Server) read(rv *ua.ReadValueID) *ua.DataValue {
	if rv.NodeID.Namespace() == 0 && rv.NodeID.IntID() == id.Server_NamespaceArray && rv.AttributeID == ua.AttributeIDValue {
		return &ua.DataValue{Status: ua.StatusOK, Value: ua.MustVariant(s.namespaces)}
	}
	n, ok := s.nodes[rv.NodeID.String()]
	if !ok {
		return &ua.DataValue{Status: ua.StatusBadNodeIDUnknown}
	}
	var v interface{}
	switch rv.AttributeID {
	case ua.AttributeIDNodeClass:
		v = int32(n.Class)
	case ua.AttributeIDBrowseName:
		v = &ua.QualifiedName{NamespaceIndex: n.ID.Namespace(), Name: n.BrowseName}
	case ua.AttributeIDDisplayName:
		v = &ua.LocalizedText{Text: n.BrowseName}
	case ua.AttributeIDIsAbstract:
		v = n.IsAbstract
	case ua.AttributeIDSymmetric:
		if n.Class != ua.NodeClassReferenceType {
			return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
		}
		v = n.Symmetric
	case ua.AttributeIDInverseName:
		if n.Class != ua.NodeClassReferenceType {
			return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
		}
		v = &ua.LocalizedText{Text: n.InverseName}
	default:
		return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
	}
	return &ua.DataValue{Status: ua.StatusOK, Value: ua.MustVariant(v)}
}

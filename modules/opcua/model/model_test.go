package model

import (
	"context"
	"testing"

	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/comsys/uanodes/modules/opcua/typeindex"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverURI   = "urn:test:server"
	roboticsURI = "http://opcfoundation.org/UA/Robotics/"
	diURI       = "http://opcfoundation.org/UA/DI/"
)

func numeric(v uint32) nodeid.ExpandedNodeID { return nodeid.Expand(nodeid.NewNumeric(1, v)) }

func subtypeOf(parent nodeid.ExpandedNodeID) *Relation {
	return &Relation{Parent: parent, ReferenceType: nodeid.Expand(HasSubtype)}
}

func roboticsBatch(t *testing.T) *Batch {
	b, err := NewBatch("robotics", roboticsURI)
	require.NoError(t, err)
	base := nodeid.Expand(BaseObjectType)
	b.Definitions = []Definition{
		{ID: numeric(1002), BrowseName: "MotionDeviceSystemType", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(base)},
		{ID: numeric(1004), BrowseName: "MotionDeviceType", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(base)},
		{ID: numeric(17230), BrowseName: "EmergencyStopFunctionType", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(base)},
		{ID: numeric(5002), BrowseName: "MotionDevices", NodeClass: ua.NodeClassObject, Parent: &Relation{Parent: numeric(1002)}, TypeDefinition: nodeid.Expand(nodeid.NewNumeric(0, id.FolderType))},
		{ID: numeric(18179), BrowseName: "Controls", NodeClass: ua.NodeClassReferenceType, InverseName: "IsControlledBy",
			Parent: subtypeOf(nodeid.Expand(nodeid.NewNumeric(0, id.HierarchicalReferences)))},
		{ID: numeric(18180), BrowseName: "IsConnectedTo", NodeClass: ua.NodeClassReferenceType, IsSymmetric: true,
			Parent: subtypeOf(nodeid.Expand(nodeid.NewNumeric(0, id.NonHierarchicalReferences)))},
	}
	return b
}

func TestRoboticsRegistersAfterServerNamespace(t *testing.T) {
	m, err := Load(context.Background(), []Source{BatchSource{roboticsBatch(t)}}, WithServerURI(serverURI))
	require.NoError(t, err)

	idx, err := m.NamespaceIndex(roboticsURI)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), idx)

	rec, ok := m.ByNameInNamespace(2, "MotionDeviceSystemType")
	require.True(t, ok)
	assert.Equal(t, nodeid.NewNumeric(2, 1002), rec.ID)
	assert.Equal(t, ua.NodeClassObjectType, rec.NodeClass)
	assert.Equal(t, "MotionDeviceSystemType", rec.DisplayName)
}

func TestModelHierarchy(t *testing.T) {
	m, err := Load(context.Background(), []Source{BatchSource{roboticsBatch(t)}}, WithServerURI(serverURI))
	require.NoError(t, err)

	estop := nodeid.NewNumeric(2, 17230)
	assert.True(t, m.IsSubtypeOf(estop, BaseObjectType))
	assert.False(t, m.IsSubtypeOf(BaseObjectType, estop))
	assert.False(t, m.IsSubtypeOf(nodeid.NewNumeric(2, 1004), nodeid.NewNumeric(2, 1002)))
	assert.Equal(t, []nodeid.NodeID{BaseObjectType}, m.Ancestors(estop))

	name, ok := m.InverseReferenceName(nodeid.NewNumeric(2, 18179))
	require.True(t, ok)
	assert.Equal(t, "IsControlledBy", name)
	name, ok = m.InverseReferenceName(nodeid.NewNumeric(2, 18180))
	require.True(t, ok)
	assert.Equal(t, "IsConnectedTo", name)
	assert.True(t, m.IsSubtypeOf(nodeid.NewNumeric(2, 18179), References))
}

func TestInstanceDeclarationsAreScoped(t *testing.T) {
	m, err := Load(context.Background(), []Source{BatchSource{roboticsBatch(t)}})
	require.NoError(t, err)

	system := nodeid.NewNumeric(1, 1002)
	rec, ok := m.ByName("MotionDevices", system)
	require.True(t, ok)
	assert.Equal(t, system, rec.Parent)

	_, ok = m.ByName("MotionDevices", nodeid.NewNumeric(1, 1004))
	assert.False(t, ok)

	children := m.Children(system)
	require.Len(t, children, 1)
	assert.Equal(t, "MotionDevices", children[0].BrowseName)
}

func TestBaseNamespaceIsBootstrapped(t *testing.T) {
	m, err := Load(context.Background(), nil)
	require.NoError(t, err)

	rec, ok := m.ByID(nodeid.NewNumeric(0, id.HasComponent))
	require.True(t, ok)
	assert.Equal(t, "HasComponent", rec.BrowseName)
	assert.True(t, m.IsSubtypeOf(HasComponent, HierarchicalRefs))

	sem, ok := m.ReferenceType(HasComponent)
	require.True(t, ok)
	assert.Equal(t, "ComponentOf", sem.InverseName)

	uri, err := m.NamespaceURI(0)
	require.NoError(t, err)
	assert.Equal(t, "http://opcfoundation.org/UA/", uri)
	assert.NotZero(t, m.CountByClass()[ua.NodeClassDataType])
}

func TestRestatedBaseNodeIsMerged(t *testing.T) {
	b, err := NewBatch("base-restated")
	require.NoError(t, err)
	b.Definitions = []Definition{
		{ID: nodeid.Expand(BaseObjectType), BrowseName: "BaseObjectType", NodeClass: ua.NodeClassObjectType},
	}
	before, err := Load(context.Background(), nil)
	require.NoError(t, err)
	m, err := Load(context.Background(), []Source{BatchSource{b}})
	require.NoError(t, err)
	assert.Equal(t, before.Len(), m.Len())

	b.Definitions[0].BrowseName = "SomethingElse"
	_, err = Load(context.Background(), []Source{BatchSource{b}})
	assert.Equal(t, registry.ErrDuplicateNodeID, errors.Cause(err))
}

func TestLoadErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
		want error
	}{
		{
			name: "duplicate id",
			defs: []Definition{
				{ID: numeric(1002), BrowseName: "A", NodeClass: ua.NodeClassObjectType},
				{ID: numeric(1002), BrowseName: "B", NodeClass: ua.NodeClassObjectType},
			},
			want: registry.ErrDuplicateNodeID,
		},
		{
			name: "duplicate sibling name",
			defs: []Definition{
				{ID: numeric(1002), BrowseName: "A", NodeClass: ua.NodeClassObjectType},
				{ID: numeric(5001), BrowseName: "X", NodeClass: ua.NodeClassObject, Parent: &Relation{Parent: numeric(1002)}},
				{ID: numeric(5002), BrowseName: "X", NodeClass: ua.NodeClassObject, Parent: &Relation{Parent: numeric(1002)}},
			},
			want: registry.ErrDuplicateBrowseName,
		},
		{
			name: "cycle",
			defs: []Definition{
				{ID: numeric(1), BrowseName: "A", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(numeric(2))},
				{ID: numeric(2), BrowseName: "B", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(numeric(1))},
			},
			want: typeindex.ErrCyclicHierarchy,
		},
		{
			name: "dangling parent",
			defs: []Definition{
				{ID: numeric(1), BrowseName: "A", NodeClass: ua.NodeClassObjectType, Parent: subtypeOf(numeric(99))},
			},
			want: ErrDanglingReference,
		},
		{
			name: "object subtype",
			defs: []Definition{
				{ID: numeric(1), BrowseName: "A", NodeClass: ua.NodeClassObject, Parent: subtypeOf(nodeid.Expand(BaseObjectType))},
			},
			want: ErrInvalidSubtype,
		},
		{
			name: "subtype across classes",
			defs: []Definition{
				{ID: numeric(1), BrowseName: "A", NodeClass: ua.NodeClassDataType, Parent: subtypeOf(nodeid.Expand(BaseObjectType))},
			},
			want: ErrInvalidSubtype,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBatch(tt.name, roboticsURI)
			require.NoError(t, err)
			b.Definitions = tt.defs
			_, err = Load(context.Background(), []Source{BatchSource{b}})
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.Cause(err))
		})
	}
}

func TestDefinitionErrorLocatesEntry(t *testing.T) {
	b, err := NewBatch("dup", roboticsURI)
	require.NoError(t, err)
	b.Definitions = []Definition{
		{ID: numeric(1002), BrowseName: "A", NodeClass: ua.NodeClassObjectType},
		{ID: numeric(1002), BrowseName: "B", NodeClass: ua.NodeClassObjectType},
	}
	bld, err := NewBuilder()
	require.NoError(t, err)
	err = bld.AddBatch(b)
	require.Error(t, err)
	derr, ok := err.(*DefinitionError)
	require.True(t, ok)
	assert.Equal(t, "dup", derr.Batch)
	assert.Equal(t, 1, derr.Index)
}

func TestBuilderRefusesWorkAfterFailedBatch(t *testing.T) {
	b, err := NewBatch("dup", roboticsURI)
	require.NoError(t, err)
	b.Definitions = []Definition{
		{ID: numeric(1002), BrowseName: "A", NodeClass: ua.NodeClassObjectType},
		{ID: numeric(1002), BrowseName: "B", NodeClass: ua.NodeClassObjectType},
		{ID: numeric(1003), BrowseName: "C", NodeClass: ua.NodeClassObjectType},
	}
	bld, err := NewBuilder()
	require.NoError(t, err)
	first := bld.AddBatch(b)
	require.Error(t, first)
	assert.Equal(t, registry.ErrDuplicateNodeID, errors.Cause(first))

	// "A" is already defined, but the model must not be built from it
	m, err := bld.Build()
	assert.Nil(t, m)
	assert.Equal(t, first, err)

	ok, err := NewBatch("ok", diURI)
	require.NoError(t, err)
	assert.Equal(t, first, bld.AddBatch(ok))
}

func TestBuilderIsSealed(t *testing.T) {
	bld, err := NewBuilder()
	require.NoError(t, err)
	_, err = bld.Build()
	require.NoError(t, err)
	_, err = bld.Build()
	assert.Equal(t, ErrBuilderSealed, err)
	assert.Equal(t, ErrBuilderSealed, bld.AddBatch(BaseBatch()))
}

func TestExplicitURIWinsOverIndex(t *testing.T) {
	b, err := NewBatch("mixed", diURI)
	require.NoError(t, err)
	b.Definitions = []Definition{
		// index 1 of the batch is DI, but the URI names Robotics
		{ID: nodeid.NewExpanded(roboticsURI, nodeid.NewNumeric(1, 1002)), BrowseName: "MotionDeviceSystemType", NodeClass: ua.NodeClassObjectType},
		{ID: nodeid.Expand(nodeid.NewNumeric(1, 1001)), BrowseName: "TopologyElementType", NodeClass: ua.NodeClassObjectType},
	}
	m, err := Load(context.Background(), []Source{BatchSource{b}})
	require.NoError(t, err)

	rob, err := m.NamespaceIndex(roboticsURI)
	require.NoError(t, err)
	di, err := m.NamespaceIndex(diURI)
	require.NoError(t, err)
	_, ok := m.ByID(nodeid.NewNumeric(rob, 1002))
	assert.True(t, ok)
	_, ok = m.ByID(nodeid.NewNumeric(di, 1001))
	assert.True(t, ok)
}

func TestBatchReloadsModel(t *testing.T) {
	m, err := Load(context.Background(), []Source{BatchSource{roboticsBatch(t)}}, WithServerURI(serverURI))
	require.NoError(t, err)

	b := m.Batch("snapshot")
	assert.Equal(t, m.NamespaceURIs(), b.Namespaces.URIs())
	assert.Len(t, b.Definitions, 6)

	again, err := Load(context.Background(), []Source{BatchSource{b}})
	require.NoError(t, err)
	assert.Equal(t, m.NamespaceURIs(), again.NamespaceURIs())
	assert.Equal(t, m.CountByClass(), again.CountByClass())
	assert.True(t, again.IsSubtypeOf(nodeid.NewNumeric(2, 17230), BaseObjectType))

	rec, ok := again.ByName("MotionDevices", nodeid.NewNumeric(2, 1002))
	require.True(t, ok)
	assert.Equal(t, nodeid.NewNumeric(0, id.FolderType), rec.TypeDefinition)

	name, ok := again.InverseReferenceName(nodeid.NewNumeric(2, 18180))
	require.True(t, ok)
	assert.Equal(t, "IsConnectedTo", name)
}

package robotics_test

import (
	"context"
	"testing"

	"github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/comsys/uanodes/modules/opcua/robotics"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadBundled(t *testing.T) *model.Model {
	m, err := model.Load(context.Background(), robotics.Sources())
	require.NoError(t, err)
	return m
}

func TestBundledNamespaces(t *testing.T) {
	m := loadBundled(t)
	assert.Equal(t, []string{"http://opcfoundation.org/UA/", robotics.DIURI, robotics.NamespaceURI}, m.NamespaceURIs())
}

func TestGeneratedConstantsResolve(t *testing.T) {
	m := loadBundled(t)
	cases := []struct {
		id    uint32
		name  string
		class ua.NodeClass
	}{
		{robotics.MotionDeviceSystemType, "MotionDeviceSystemType", ua.NodeClassObjectType},
		{robotics.ControllerType, "ControllerType", ua.NodeClassObjectType},
		{robotics.MotionDeviceSystemType_MotionDevices, "MotionDevices", ua.NodeClassObject},
		{robotics.ControllerType_CurrentUser, "CurrentUser", ua.NodeClassObject},
		{robotics.SafetyStateType_EmergencyStop, "EmergencyStop", ua.NodeClassVariable},
		{robotics.UserType_Level, "Level", ua.NodeClassVariable},
		{robotics.Controls, "Controls", ua.NodeClassReferenceType},
		{robotics.ExecutionModeEnumeration, "ExecutionModeEnumeration", ua.NodeClassDataType},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n, err := robotics.ID(m, c.id)
			require.NoError(t, err)
			rec, ok := m.ByID(n)
			require.True(t, ok, "%s not in model", n)
			assert.Equal(t, c.name, rec.BrowseName)
			assert.Equal(t, c.class, rec.NodeClass)
		})
	}
}

func TestBundledTypeHierarchy(t *testing.T) {
	m := loadBundled(t)
	ns, err := m.NamespaceIndex(robotics.DIURI)
	require.NoError(t, err)
	component := nodeid.NewNumeric(ns, 15063)
	topology := nodeid.NewNumeric(ns, 1001)

	controller, err := robotics.ID(m, robotics.ControllerType)
	require.NoError(t, err)
	assert.True(t, m.IsSubtypeOf(controller, component))
	assert.True(t, m.IsSubtypeOf(controller, topology))
	assert.True(t, m.IsSubtypeOf(controller, model.BaseObjectType))

	user, err := robotics.ID(m, robotics.ControllerType_CurrentUser)
	require.NoError(t, err)
	rec, _ := m.ByID(user)
	userType, _ := robotics.ID(m, robotics.UserType)
	assert.Equal(t, userType, rec.TypeDefinition)
}

func TestResolveConstantOnBundledModel(t *testing.T) {
	l := opcua.NewLookup(loadBundled(t))

	n, err := l.ResolveConstant(robotics.NamespaceURI, "MotionDeviceSystemType_MotionDevices")
	require.NoError(t, err)
	assert.Equal(t, robotics.MotionDeviceSystemType_MotionDevices, n.IntID())

	n, err = l.ResolveConstant(robotics.DIURI, "ComponentType")
	require.NoError(t, err)
	assert.Equal(t, uint32(15063), n.IntID())
}

func TestResolveConstantSharedMemberName(t *testing.T) {
	l := opcua.NewLookup(loadBundled(t))

	// both stop function types declare Name and Active
	for _, name := range []string{"Name", "Active"} {
		_, err := l.ResolveConstant(robotics.NamespaceURI, name)
		assert.Equal(t, registry.ErrAmbiguousBrowseName, errors.Cause(err), name)
	}

	n, err := l.ResolveConstant(robotics.NamespaceURI, "EmergencyStopFunctionType_Name")
	require.NoError(t, err)
	assert.Equal(t, robotics.EmergencyStopFunctionType_Name, n.IntID())

	n, err = l.ResolveConstant(robotics.NamespaceURI, "ProtectiveStopFunctionType_Active")
	require.NoError(t, err)
	assert.Equal(t, robotics.ProtectiveStopFunctionType_Active, n.IntID())
}

func TestBundledLoadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := robotics.Sources()[0].Load(ctx)
	assert.Equal(t, context.Canceled, err)
}

package opcua_test_infra

import (
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

const (
	ServerURI   = "urn:uanodes:test:server"
	DIURI       = "http://opcfoundation.org/UA/DI/"
	RoboticsURI = "http://opcfoundation.org/UA/Robotics/"
)

// Namespace positions used by the fixture, as in the namespace array of a
// server hosting both companion models.
const (
	NsBase     = 0
	NsDI       = 1
	NsRobotics = 2
)

// FixtureNode is one node of the Robotics fixture.
type FixtureNode struct {
	NS, ParentNS uint16
	ID, ParentID uint32
	// Ref is the ns=0 reference type from the parent; HasSubtype for types.
	Ref       uint32
	Name      string
	Class     ua.NodeClass
	TypeDef   uint32
	Abstract  bool
	Symmetric bool
	Inverse   string
}

// Fixture is a small projection of the DI and Robotics models. Parents come
// before children.
var Fixture = []FixtureNode{
	{NS: NsDI, ID: 1001, ParentNS: NsBase, ParentID: id.BaseObjectType, Ref: id.HasSubtype, Name: "TopologyElementType", Class: ua.NodeClassObjectType, Abstract: true},
	{NS: NsDI, ID: 15063, ParentNS: NsDI, ParentID: 1001, Ref: id.HasSubtype, Name: "ComponentType", Class: ua.NodeClassObjectType, Abstract: true},
	{NS: NsDI, ID: 5002, ParentNS: NsDI, ParentID: 1001, Ref: id.HasComponent, Name: "ParameterSet", Class: ua.NodeClassObject, TypeDef: id.BaseObjectType},

	{NS: NsRobotics, ID: 1002, ParentNS: NsDI, ParentID: 15063, Ref: id.HasSubtype, Name: "MotionDeviceSystemType", Class: ua.NodeClassObjectType},
	{NS: NsRobotics, ID: 1003, ParentNS: NsDI, ParentID: 15063, Ref: id.HasSubtype, Name: "ControllerType", Class: ua.NodeClassObjectType},
	{NS: NsRobotics, ID: 1004, ParentNS: NsDI, ParentID: 15063, Ref: id.HasSubtype, Name: "MotionDeviceType", Class: ua.NodeClassObjectType},
	{NS: NsRobotics, ID: 17230, ParentNS: NsBase, ParentID: id.BaseObjectType, Ref: id.HasSubtype, Name: "EmergencyStopFunctionType", Class: ua.NodeClassObjectType},
	{NS: NsRobotics, ID: 5002, ParentNS: NsRobotics, ParentID: 1002, Ref: id.HasComponent, Name: "MotionDevices", Class: ua.NodeClassObject, TypeDef: id.FolderType},
	{NS: NsRobotics, ID: 5003, ParentNS: NsRobotics, ParentID: 1002, Ref: id.HasComponent, Name: "Controllers", Class: ua.NodeClassObject, TypeDef: id.FolderType},
	{NS: NsRobotics, ID: 6001, ParentNS: NsRobotics, ParentID: 1004, Ref: id.HasProperty, Name: "Manufacturer", Class: ua.NodeClassVariable, TypeDef: id.PropertyType},
	{NS: NsRobotics, ID: 6002, ParentNS: NsRobotics, ParentID: 17230, Ref: id.HasProperty, Name: "Name", Class: ua.NodeClassVariable, TypeDef: id.PropertyType},
	{NS: NsRobotics, ID: 7001, ParentNS: NsRobotics, ParentID: 5003, Ref: id.HasComponent, Name: "Reset", Class: ua.NodeClassMethod},

	{NS: NsRobotics, ID: 18177, ParentNS: NsBase, ParentID: id.NonHierarchicalReferences, Ref: id.HasSubtype, Name: "Moves", Class: ua.NodeClassReferenceType, Inverse: "IsMovedBy"},
	{NS: NsRobotics, ID: 18178, ParentNS: NsBase, ParentID: id.NonHierarchicalReferences, Ref: id.HasSubtype, Name: "IsDrivenBy", Class: ua.NodeClassReferenceType, Inverse: "Drives"},
	{NS: NsRobotics, ID: 18179, ParentNS: NsBase, ParentID: id.NonHierarchicalReferences, Ref: id.HasSubtype, Name: "Controls", Class: ua.NodeClassReferenceType, Inverse: "IsControlledBy"},
	{NS: NsRobotics, ID: 18180, ParentNS: NsBase, ParentID: id.NonHierarchicalReferences, Ref: id.HasSubtype, Name: "IsConnectedTo", Class: ua.NodeClassReferenceType, Symmetric: true},
	{NS: NsRobotics, ID: 18181, ParentNS: NsBase, ParentID: id.HierarchicalReferences, Ref: id.HasSubtype, Name: "HasSafetyStates", Class: ua.NodeClassReferenceType, Inverse: "SafetyStatesOf"},
	{NS: NsRobotics, ID: 18182, ParentNS: NsBase, ParentID: id.HierarchicalReferences, Ref: id.HasSubtype, Name: "HasSlave", Class: ua.NodeClassReferenceType, Inverse: "IsSlaveOf"},
}

// NodeID returns the node id of n with the fixture's namespace indices.
func (n FixtureNode) NodeID() nodeid.NodeID { return nodeid.NewNumeric(n.NS, n.ID) }

func (n FixtureNode) definition() model.Definition {
	d := model.Definition{
		ID:          nodeid.Expand(nodeid.NewNumeric(n.NS, n.ID)),
		BrowseName:  n.Name,
		NodeClass:   n.Class,
		IsAbstract:  n.Abstract,
		IsSymmetric: n.Symmetric,
		InverseName: n.Inverse,
		Parent: &model.Relation{
			Parent:        nodeid.Expand(nodeid.NewNumeric(n.ParentNS, n.ParentID)),
			ReferenceType: nodeid.Expand(nodeid.NewNumeric(0, n.Ref)),
		},
	}
	if n.TypeDef != 0 {
		d.TypeDefinition = nodeid.Expand(nodeid.NewNumeric(0, n.TypeDef))
	}
	return d
}

// RoboticsBatch returns the fixture as a batch with DI at index 1 and
// Robotics at index 2.
func RoboticsBatch() *model.Batch {
	b, err := model.NewBatch("robotics-fixture", DIURI, RoboticsURI)
	if err != nil {
		panic(err)
	}
	for _, n := range Fixture {
		b.Definitions = append(b.Definitions, n.definition())
	}
	return b
}

// Fixture ids after loading RoboticsBatch behind a server namespace, which
// shifts DI to 2 and Robotics to 3.
var (
	TopologyElementType       = nodeid.NewNumeric(2, 1001)
	ComponentType             = nodeid.NewNumeric(2, 15063)
	MotionDeviceSystemType    = nodeid.NewNumeric(3, 1002)
	ControllerType            = nodeid.NewNumeric(3, 1003)
	MotionDeviceType          = nodeid.NewNumeric(3, 1004)
	EmergencyStopFunctionType = nodeid.NewNumeric(3, 17230)
	MotionDevices             = nodeid.NewNumeric(3, 5002)
	Controllers               = nodeid.NewNumeric(3, 5003)
	ResetMethod               = nodeid.NewNumeric(3, 7001)
	Controls                  = nodeid.NewNumeric(3, 18179)
	IsConnectedTo             = nodeid.NewNumeric(3, 18180)
)

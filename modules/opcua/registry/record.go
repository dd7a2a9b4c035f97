package registry

import (
	"fmt"

	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/ua"
)

// NodeClasses lists the node classes a registry accepts, in the order used
// for reports and generated code.
var NodeClasses = []ua.NodeClass{
	ua.NodeClassObjectType,
	ua.NodeClassVariableType,
	ua.NodeClassReferenceType,
	ua.NodeClassDataType,
	ua.NodeClassObject,
	ua.NodeClassVariable,
	ua.NodeClassMethod,
}

var nodeClassNames = map[ua.NodeClass]string{
	ua.NodeClassObject:        "Object",
	ua.NodeClassObjectType:    "ObjectType",
	ua.NodeClassVariable:      "Variable",
	ua.NodeClassVariableType:  "VariableType",
	ua.NodeClassMethod:        "Method",
	ua.NodeClassReferenceType: "ReferenceType",
	ua.NodeClassDataType:      "DataType",
}

// ValidClass reports whether c is one of NodeClasses.
func ValidClass(c ua.NodeClass) bool {
	_, ok := nodeClassNames[c]
	return ok
}

// ClassName returns the name used in model files, e.g. "ObjectType".
func ClassName(c ua.NodeClass) string {
	if n, ok := nodeClassNames[c]; ok {
		return n
	}
	return fmt.Sprintf("NodeClass(%d)", uint32(c))
}

// ParseClass is the inverse of ClassName.
func ParseClass(s string) (ua.NodeClass, bool) {
	for c, n := range nodeClassNames {
		if n == s {
			return c, true
		}
	}
	return ua.NodeClassUnspecified, false
}

// IsTypeClass reports whether nodes of class c take part in subtyping.
func IsTypeClass(c ua.NodeClass) bool {
	switch c {
	case ua.NodeClassObjectType, ua.NodeClassVariableType, ua.NodeClassReferenceType, ua.NodeClassDataType:
		return true
	}
	return false
}

// Record describes one node. Records are created while a model loads and
// must not be modified once defined.
type Record struct {
	ID          nodeid.NodeID `json:"node_id"`
	BrowseName  string        `json:"browse_name"`
	NodeClass   ua.NodeClass  `json:"node_class"`
	DisplayName string        `json:"display_name,omitempty"`
	IsAbstract  bool          `json:"is_abstract,omitempty"`
	// TypeDefinition is the ObjectType or VariableType of an instance.
	TypeDefinition nodeid.NodeID `json:"type_definition,omitempty"`
	// Parent is the browse scope the record was defined in, Null when unscoped.
	Parent nodeid.NodeID `json:"parent,omitempty"`
}

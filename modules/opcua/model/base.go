package model

import (
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

type baseNode struct {
	id        uint32
	name      string
	class     ua.NodeClass
	parent    uint32
	ref       uint32
	typeDef   uint32
	abstract  bool
	symmetric bool
	inverse   string
}

// baseNodes is the part of the OPC UA base namespace that companion models
// build on: the reference type tree, the root object, variable and data
// types, the standard folders and the modelling rules.
var baseNodes = []baseNode{
	{id: id.References, name: "References", class: ua.NodeClassReferenceType, abstract: true, symmetric: true},
	{id: id.HierarchicalReferences, name: "HierarchicalReferences", class: ua.NodeClassReferenceType, parent: id.References, ref: id.HasSubtype, abstract: true, inverse: "InverseHierarchicalReferences"},
	{id: id.NonHierarchicalReferences, name: "NonHierarchicalReferences", class: ua.NodeClassReferenceType, parent: id.References, ref: id.HasSubtype, abstract: true, symmetric: true},
	{id: id.HasChild, name: "HasChild", class: ua.NodeClassReferenceType, parent: id.HierarchicalReferences, ref: id.HasSubtype, abstract: true, inverse: "ChildOf"},
	{id: id.Organizes, name: "Organizes", class: ua.NodeClassReferenceType, parent: id.HierarchicalReferences, ref: id.HasSubtype, inverse: "OrganizedBy"},
	{id: id.HasEventSource, name: "HasEventSource", class: ua.NodeClassReferenceType, parent: id.HierarchicalReferences, ref: id.HasSubtype, inverse: "EventSourceOf"},
	{id: id.HasNotifier, name: "HasNotifier", class: ua.NodeClassReferenceType, parent: id.HasEventSource, ref: id.HasSubtype, inverse: "NotifierOf"},
	{id: id.Aggregates, name: "Aggregates", class: ua.NodeClassReferenceType, parent: id.HasChild, ref: id.HasSubtype, abstract: true, inverse: "AggregatedBy"},
	{id: id.HasSubtype, name: "HasSubtype", class: ua.NodeClassReferenceType, parent: id.HasChild, ref: id.HasSubtype, inverse: "SubtypeOf"},
	{id: id.HasProperty, name: "HasProperty", class: ua.NodeClassReferenceType, parent: id.Aggregates, ref: id.HasSubtype, inverse: "PropertyOf"},
	{id: id.HasComponent, name: "HasComponent", class: ua.NodeClassReferenceType, parent: id.Aggregates, ref: id.HasSubtype, inverse: "ComponentOf"},
	{id: id.HasOrderedComponent, name: "HasOrderedComponent", class: ua.NodeClassReferenceType, parent: id.HasComponent, ref: id.HasSubtype, inverse: "OrderedComponentOf"},
	{id: id.HasModellingRule, name: "HasModellingRule", class: ua.NodeClassReferenceType, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, inverse: "ModellingRuleOf"},
	{id: id.HasTypeDefinition, name: "HasTypeDefinition", class: ua.NodeClassReferenceType, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, inverse: "TypeDefinitionOf"},
	{id: id.HasEncoding, name: "HasEncoding", class: ua.NodeClassReferenceType, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, inverse: "EncodingOf"},
	{id: id.HasDescription, name: "HasDescription", class: ua.NodeClassReferenceType, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, inverse: "DescriptionOf"},
	{id: id.GeneratesEvent, name: "GeneratesEvent", class: ua.NodeClassReferenceType, parent: id.NonHierarchicalReferences, ref: id.HasSubtype, inverse: "GeneratedBy"},

	{id: id.BaseObjectType, name: "BaseObjectType", class: ua.NodeClassObjectType},
	{id: id.FolderType, name: "FolderType", class: ua.NodeClassObjectType, parent: id.BaseObjectType, ref: id.HasSubtype},
	{id: id.ModellingRuleType, name: "ModellingRuleType", class: ua.NodeClassObjectType, parent: id.BaseObjectType, ref: id.HasSubtype},
	{id: id.DataTypeEncodingType, name: "DataTypeEncodingType", class: ua.NodeClassObjectType, parent: id.BaseObjectType, ref: id.HasSubtype},

	{id: id.BaseVariableType, name: "BaseVariableType", class: ua.NodeClassVariableType, abstract: true},
	{id: id.BaseDataVariableType, name: "BaseDataVariableType", class: ua.NodeClassVariableType, parent: id.BaseVariableType, ref: id.HasSubtype},
	{id: id.PropertyType, name: "PropertyType", class: ua.NodeClassVariableType, parent: id.BaseVariableType, ref: id.HasSubtype},

	{id: id.BaseDataType, name: "BaseDataType", class: ua.NodeClassDataType, abstract: true},
	{id: id.Number, name: "Number", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype, abstract: true},
	{id: id.Integer, name: "Integer", class: ua.NodeClassDataType, parent: id.Number, ref: id.HasSubtype, abstract: true},
	{id: id.UInteger, name: "UInteger", class: ua.NodeClassDataType, parent: id.Number, ref: id.HasSubtype, abstract: true},
	{id: id.Boolean, name: "Boolean", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.SByte, name: "SByte", class: ua.NodeClassDataType, parent: id.Integer, ref: id.HasSubtype},
	{id: id.Byte, name: "Byte", class: ua.NodeClassDataType, parent: id.UInteger, ref: id.HasSubtype},
	{id: id.Int16, name: "Int16", class: ua.NodeClassDataType, parent: id.Integer, ref: id.HasSubtype},
	{id: id.UInt16, name: "UInt16", class: ua.NodeClassDataType, parent: id.UInteger, ref: id.HasSubtype},
	{id: id.Int32, name: "Int32", class: ua.NodeClassDataType, parent: id.Integer, ref: id.HasSubtype},
	{id: id.UInt32, name: "UInt32", class: ua.NodeClassDataType, parent: id.UInteger, ref: id.HasSubtype},
	{id: id.Int64, name: "Int64", class: ua.NodeClassDataType, parent: id.Integer, ref: id.HasSubtype},
	{id: id.UInt64, name: "UInt64", class: ua.NodeClassDataType, parent: id.UInteger, ref: id.HasSubtype},
	{id: id.Float, name: "Float", class: ua.NodeClassDataType, parent: id.Number, ref: id.HasSubtype},
	{id: id.Double, name: "Double", class: ua.NodeClassDataType, parent: id.Number, ref: id.HasSubtype},
	{id: id.String, name: "String", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.DateTime, name: "DateTime", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.GUID, name: "Guid", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.ByteString, name: "ByteString", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.NodeID, name: "NodeId", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.StatusCode, name: "StatusCode", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.QualifiedName, name: "QualifiedName", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.LocalizedText, name: "LocalizedText", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype},
	{id: id.Structure, name: "Structure", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype, abstract: true},
	{id: id.Enumeration, name: "Enumeration", class: ua.NodeClassDataType, parent: id.BaseDataType, ref: id.HasSubtype, abstract: true},

	{id: id.RootFolder, name: "Root", class: ua.NodeClassObject, typeDef: id.FolderType},
	{id: id.ObjectsFolder, name: "Objects", class: ua.NodeClassObject, parent: id.RootFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.TypesFolder, name: "Types", class: ua.NodeClassObject, parent: id.RootFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.ViewsFolder, name: "Views", class: ua.NodeClassObject, parent: id.RootFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.ObjectTypesFolder, name: "ObjectTypes", class: ua.NodeClassObject, parent: id.TypesFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.VariableTypesFolder, name: "VariableTypes", class: ua.NodeClassObject, parent: id.TypesFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.DataTypesFolder, name: "DataTypes", class: ua.NodeClassObject, parent: id.TypesFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.ReferenceTypesFolder, name: "ReferenceTypes", class: ua.NodeClassObject, parent: id.TypesFolder, ref: id.Organizes, typeDef: id.FolderType},
	{id: id.ModellingRule_Mandatory, name: "Mandatory", class: ua.NodeClassObject, typeDef: id.ModellingRuleType},
	{id: id.ModellingRule_Optional, name: "Optional", class: ua.NodeClassObject, typeDef: id.ModellingRuleType},
	{id: id.ModellingRule_ExposesItsArray, name: "ExposesItsArray", class: ua.NodeClassObject, typeDef: id.ModellingRuleType},
	{id: id.ModellingRule_OptionalPlaceholder, name: "OptionalPlaceholder", class: ua.NodeClassObject, typeDef: id.ModellingRuleType},
	{id: id.ModellingRule_MandatoryPlaceholder, name: "MandatoryPlaceholder", class: ua.NodeClassObject, typeDef: id.ModellingRuleType},
}

func baseID(v uint32) nodeid.ExpandedNodeID {
	if v == 0 {
		return nodeid.ExpandedNodeID{}
	}
	return nodeid.Expand(nodeid.NewNumeric(0, v))
}

// BaseBatch returns the base namespace nodes every builder starts from unless
// WithoutBase is given.
func BaseBatch() *Batch {
	b, _ := NewBatch("base")
	for _, n := range baseNodes {
		def := Definition{
			ID:             baseID(n.id),
			BrowseName:     n.name,
			NodeClass:      n.class,
			IsAbstract:     n.abstract,
			TypeDefinition: baseID(n.typeDef),
			IsSymmetric:    n.symmetric,
			InverseName:    n.inverse,
		}
		if n.parent != 0 {
			def.Parent = &Relation{Parent: baseID(n.parent), ReferenceType: baseID(n.ref)}
		}
		b.Definitions = append(b.Definitions, def)
	}
	return b
}

// Well-known ids used while building.
var (
	HasSubtype        = nodeid.NewNumeric(0, id.HasSubtype)
	HasComponent      = nodeid.NewNumeric(0, id.HasComponent)
	HierarchicalRefs  = nodeid.NewNumeric(0, id.HierarchicalReferences)
	BaseObjectType    = nodeid.NewNumeric(0, id.BaseObjectType)
	BaseVariableType  = nodeid.NewNumeric(0, id.BaseVariableType)
	BaseDataType      = nodeid.NewNumeric(0, id.BaseDataType)
	References        = nodeid.NewNumeric(0, id.References)
	HasTypeDefinition = nodeid.NewNumeric(0, id.HasTypeDefinition)
)

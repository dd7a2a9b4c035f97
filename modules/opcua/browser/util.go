package browser

import (
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

var (
	typeAttrs = buildAttributesLists()

	hasSubtype = ua.NewNumericNodeID(0, id.HasSubtype)
	aggregates = ua.NewNumericNodeID(0, id.Aggregates)

	// DefaultRoots are the roots of the four type hierarchies.
	DefaultRoots = []*ua.NodeID{
		ua.NewNumericNodeID(0, id.BaseObjectType),
		ua.NewNumericNodeID(0, id.BaseVariableType),
		ua.NewNumericNodeID(0, id.BaseDataType),
		ua.NewNumericNodeID(0, id.References),
	}
)

// buildAttributesLists returns the attributes read per node class on top
// of what browsing already reports.
// see OPC 10000-3: 5 Standard NodeClasses
func buildAttributesLists() map[ua.NodeClass][]ua.AttributeID {
	attrs := make(map[ua.NodeClass][]ua.AttributeID)
	attrs[ua.NodeClassReferenceType] = []ua.AttributeID{
		ua.AttributeIDIsAbstract,
		ua.AttributeIDSymmetric,
		ua.AttributeIDInverseName,
	}
	attrs[ua.NodeClassObjectType] = []ua.AttributeID{
		ua.AttributeIDIsAbstract,
	}
	attrs[ua.NodeClassVariableType] = []ua.AttributeID{
		ua.AttributeIDIsAbstract,
	}
	attrs[ua.NodeClassDataType] = []ua.AttributeID{
		ua.AttributeIDIsAbstract,
	}
	return attrs
}

// browseRef selects the references followed from a node.
type browseRef struct {
	refType         *ua.NodeID
	includeSubtypes bool
}

var (
	typeRefs = []browseRef{
		{hasSubtype, false},
		{aggregates, true},
	}
	instanceRefs = []browseRef{
		{aggregates, true},
	}
)

func nodesToBrowseFor(chunk []task) ([]*ua.BrowseDescription, []task) {
	var descs []*ua.BrowseDescription
	var owners []task
	for _, t := range chunk {
		refs := instanceRefs
		if t.isType {
			refs = typeRefs
		}
		for _, ref := range refs {
			descs = append(descs, &ua.BrowseDescription{
				NodeID:          t.node,
				BrowseDirection: ua.BrowseDirectionForward,
				ReferenceTypeID: ref.refType,
				IncludeSubtypes: ref.includeSubtypes,
				ResultMask:      uint32(ua.BrowseResultMaskAll),
			})
			owners = append(owners, t)
		}
	}
	return descs, owners
}

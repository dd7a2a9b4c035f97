package nodeid

import (
	"strings"

	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

// ExpandedNodeID is a NodeID that may name its namespace by URI instead of,
// or in addition to, a local index. When both are set the URI wins.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
}

// Expand wraps a local node id without a namespace URI.
func Expand(n NodeID) ExpandedNodeID {
	return ExpandedNodeID{NodeID: n}
}

// NewExpanded builds an expanded id that names its namespace by URI.
func NewExpanded(uri string, n NodeID) ExpandedNodeID {
	return ExpandedNodeID{NodeID: n, NamespaceURI: uri}
}

func (e ExpandedNodeID) IsNull() bool {
	return e.NamespaceURI == "" && e.NodeID.IsNull()
}

// String returns "nsu=<uri>;<id>" when a URI is set, else the plain node id.
// The namespace index is dropped when a URI is present.
func (e ExpandedNodeID) String() string {
	if e.NamespaceURI == "" {
		return e.NodeID.String()
	}
	return "nsu=" + e.NamespaceURI + ";" + e.NodeID.identifier()
}

var identifierPrefixes = []string{";i=", ";s=", ";g=", ";b="}

// ParseExpanded reads either a plain node id or the "nsu=<uri>;<id>" form.
func ParseExpanded(s string) (ExpandedNodeID, error) {
	if !strings.HasPrefix(s, "nsu=") {
		n, err := Parse(s)
		if err != nil {
			return ExpandedNodeID{}, err
		}
		return Expand(n), nil
	}
	rest := s[len("nsu="):]
	cut := -1
	for _, p := range identifierPrefixes {
		if i := strings.Index(rest, p); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut <= 0 {
		return ExpandedNodeID{}, errors.Wrapf(ErrInvalidNodeID, "%q: missing identifier after namespace uri", s)
	}
	n, err := Parse(rest[cut+1:])
	if err != nil {
		return ExpandedNodeID{}, err
	}
	return NewExpanded(rest[:cut], n), nil
}

// FromUAExpanded converts a gopcua expanded node id. The server index is not
// kept; ids of remote servers are not resolvable locally.
func FromUAExpanded(e *ua.ExpandedNodeID) (ExpandedNodeID, error) {
	if e == nil {
		return ExpandedNodeID{}, nil
	}
	n, err := FromUA(e.NodeID)
	if err != nil {
		return ExpandedNodeID{}, err
	}
	return NewExpanded(e.NamespaceURI, n), nil
}

func (e ExpandedNodeID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *ExpandedNodeID) UnmarshalText(b []byte) error {
	v, err := ParseExpanded(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Package nodeid implements OPC UA node identifiers as comparable values.
package nodeid

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

// Kind is the identifier type of a NodeID.
type Kind uint8

const (
	Numeric Kind = iota
	String
	GUID
	Opaque
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "Numeric"
	case String:
		return "String"
	case GUID:
		return "Guid"
	case Opaque:
		return "Opaque"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// NodeID addresses a single node within a namespace. The zero value is the
// null node id "i=0". NodeIDs are comparable and can be used as map keys.
type NodeID struct {
	ns   uint16
	kind Kind
	num  uint32
	// str holds string identifiers and the raw bytes of opaque identifiers.
	str  string
	guid uuid.UUID
}

// Null is the OPC UA null node id.
var Null = NodeID{}

var ErrInvalidNodeID = errors.New("invalid node id")

func NewNumeric(ns uint16, v uint32) NodeID {
	return NodeID{ns: ns, kind: Numeric, num: v}
}

func NewString(ns uint16, v string) NodeID {
	return NodeID{ns: ns, kind: String, str: v}
}

func NewGUID(ns uint16, v uuid.UUID) NodeID {
	return NodeID{ns: ns, kind: GUID, guid: v}
}

func NewOpaque(ns uint16, v []byte) NodeID {
	return NodeID{ns: ns, kind: Opaque, str: string(v)}
}

func (n NodeID) Namespace() uint16 { return n.ns }
func (n NodeID) Kind() Kind        { return n.kind }

// IntID returns the numeric identifier, or 0 for other kinds.
func (n NodeID) IntID() uint32 { return n.num }

// StringID returns the string identifier, or "" for other kinds.
func (n NodeID) StringID() string {
	if n.kind != String {
		return ""
	}
	return n.str
}

func (n NodeID) GUID() uuid.UUID { return n.guid }

// Opaque returns a copy of the opaque identifier bytes.
func (n NodeID) Opaque() []byte {
	if n.kind != Opaque {
		return nil
	}
	return []byte(n.str)
}

func (n NodeID) IsNull() bool { return n == Null }

// WithNamespace returns a copy of n moved to namespace ns.
func (n NodeID) WithNamespace(ns uint16) NodeID {
	n.ns = ns
	return n
}

// Equal reports whether n and o have the same kind, namespace and value.
func (n NodeID) Equal(o NodeID) bool { return n == o }

// Less orders node ids by namespace, then kind, then value.
func (n NodeID) Less(o NodeID) bool {
	if n.ns != o.ns {
		return n.ns < o.ns
	}
	if n.kind != o.kind {
		return n.kind < o.kind
	}
	switch n.kind {
	case Numeric:
		return n.num < o.num
	case GUID:
		return bytes.Compare(n.guid[:], o.guid[:]) < 0
	default:
		return n.str < o.str
	}
}

// String returns the OPC UA text notation, e.g. "ns=2;i=1002".
func (n NodeID) String() string {
	var b strings.Builder
	if n.ns != 0 {
		b.WriteString("ns=")
		b.WriteString(strconv.FormatUint(uint64(n.ns), 10))
		b.WriteByte(';')
	}
	b.WriteString(n.identifier())
	return b.String()
}

func (n NodeID) identifier() string {
	switch n.kind {
	case String:
		return "s=" + n.str
	case GUID:
		return "g=" + strings.ToUpper(n.guid.String())
	case Opaque:
		return "b=" + base64.StdEncoding.EncodeToString([]byte(n.str))
	default:
		return "i=" + strconv.FormatUint(uint64(n.num), 10)
	}
}

// Parse reads the OPC UA text notation of a node id.
func Parse(s string) (NodeID, error) {
	uid, err := ua.ParseNodeID(s)
	if err != nil {
		return Null, errors.Wrapf(ErrInvalidNodeID, "%q: %s", s, err)
	}
	return FromUA(uid)
}

// MustParse is like Parse but panics on malformed input. It is meant for
// package-level tables of well-known ids.
func MustParse(s string) NodeID {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromUA converts a gopcua node id. The TwoByte, FourByte and Numeric
// encodings all map to Numeric.
func FromUA(n *ua.NodeID) (NodeID, error) {
	if n == nil {
		return Null, nil
	}
	switch n.Type() {
	case ua.NodeIDTypeTwoByte, ua.NodeIDTypeFourByte, ua.NodeIDTypeNumeric:
		return NewNumeric(n.Namespace(), n.IntID()), nil
	case ua.NodeIDTypeString:
		return NewString(n.Namespace(), n.StringID()), nil
	case ua.NodeIDTypeGUID:
		g, err := uuid.Parse(n.StringID())
		if err != nil {
			return Null, errors.Wrapf(ErrInvalidNodeID, "guid %q: %s", n.StringID(), err)
		}
		return NewGUID(n.Namespace(), g), nil
	case ua.NodeIDTypeByteString:
		b, err := base64.StdEncoding.DecodeString(n.StringID())
		if err != nil {
			return Null, errors.Wrapf(ErrInvalidNodeID, "opaque %q: %s", n.StringID(), err)
		}
		return NewOpaque(n.Namespace(), b), nil
	default:
		return Null, errors.Wrapf(ErrInvalidNodeID, "unsupported encoding %d", n.Type())
	}
}

// UA converts n into a gopcua node id for use on the wire.
func (n NodeID) UA() *ua.NodeID {
	switch n.kind {
	case String:
		return ua.NewStringNodeID(n.ns, n.str)
	case GUID:
		return ua.NewGUIDNodeID(n.ns, n.guid.String())
	case Opaque:
		return ua.NewByteStringNodeID(n.ns, []byte(n.str))
	default:
		return ua.NewNumericNodeID(n.ns, n.num)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

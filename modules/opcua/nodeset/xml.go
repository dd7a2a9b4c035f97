package nodeset

import (
	"bytes"
	"encoding/xml"
	"io"
	"io/ioutil"
	"strings"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var xmlClasses = map[string]ua.NodeClass{
	"UAObjectType":    ua.NodeClassObjectType,
	"UAVariableType":  ua.NodeClassVariableType,
	"UAReferenceType": ua.NodeClassReferenceType,
	"UADataType":      ua.NodeClassDataType,
	"UAObject":        ua.NodeClassObject,
	"UAVariable":      ua.NodeClassVariable,
	"UAMethod":        ua.NodeClassMethod,
}

type xmlReference struct {
	ReferenceType string `xml:"ReferenceType,attr"`
	IsForward     string `xml:"IsForward,attr"`
	Target        string `xml:",chardata"`
}

func (r xmlReference) forward() bool { return r.IsForward != "false" }

type xmlNode struct {
	NodeID       string         `xml:"NodeId,attr"`
	BrowseName   string         `xml:"BrowseName,attr"`
	ParentNodeID string         `xml:"ParentNodeId,attr"`
	IsAbstract   bool           `xml:"IsAbstract,attr"`
	Symmetric    bool           `xml:"Symmetric,attr"`
	DisplayName  []string       `xml:"DisplayName"`
	InverseName  []string       `xml:"InverseName"`
	References   []xmlReference `xml:"References>Reference"`
}

type xmlAlias struct {
	Alias string `xml:"Alias,attr"`
	Value string `xml:",chardata"`
}

type xmlReader struct {
	file    string
	data    []byte
	dec     *xml.Decoder
	aliases map[string]string
	batch   *model.Batch
}

// ReadXML reads a NodeSet2 document. Node ids are relative to its
// NamespaceUris list; index 1 is the first URI listed there.
func ReadXML(name string, r io.Reader) (*model.Batch, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	x := &xmlReader{
		file:    name,
		data:    data,
		dec:     xml.NewDecoder(bytes.NewReader(data)),
		aliases: make(map[string]string),
	}
	if err := x.read(); err != nil {
		return nil, err
	}
	return x.batch, nil
}

// line returns the line the decoder has reached.
func (x *xmlReader) line() int {
	off := x.dec.InputOffset()
	if off > int64(len(x.data)) {
		off = int64(len(x.data))
	}
	return bytes.Count(x.data[:off], []byte("\n")) + 1
}

func (x *xmlReader) fail(line int, field string, err error) error {
	return &ParseError{File: x.file, Line: line, Field: field, Err: err}
}

func (x *xmlReader) read() error {
	var uris []string
	for {
		line := x.line()
		tok, err := x.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return x.fail(x.line(), "", errors.Wrap(ErrMalformed, err.Error()))
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "UANodeSet":
		case "NamespaceUris":
			var v struct {
				URIs []string `xml:"Uri"`
			}
			if err := x.dec.DecodeElement(&v, &se); err != nil {
				return x.fail(line, "NamespaceUris", errors.Wrap(ErrMalformed, err.Error()))
			}
			uris = append(uris, v.URIs...)
		case "Aliases":
			var v struct {
				Aliases []xmlAlias `xml:"Alias"`
			}
			if err := x.dec.DecodeElement(&v, &se); err != nil {
				return x.fail(line, "Aliases", errors.Wrap(ErrMalformed, err.Error()))
			}
			for _, a := range v.Aliases {
				x.aliases[a.Alias] = strings.TrimSpace(a.Value)
			}
		default:
			class, ok := xmlClasses[se.Name.Local]
			if !ok {
				if err := x.dec.Skip(); err != nil {
					return x.fail(line, se.Name.Local, errors.Wrap(ErrMalformed, err.Error()))
				}
				continue
			}
			if x.batch == nil {
				if x.batch, err = model.NewBatch(x.file, uris...); err != nil {
					return x.fail(line, "NamespaceUris", err)
				}
			}
			var n xmlNode
			if err := x.dec.DecodeElement(&n, &se); err != nil {
				return x.fail(line, se.Name.Local, errors.Wrap(ErrMalformed, err.Error()))
			}
			def, err := x.definition(class, n)
			if err != nil {
				if pe, ok := err.(*ParseError); ok {
					pe.File, pe.Line = x.file, line
					return pe
				}
				return x.fail(line, "", err)
			}
			x.batch.Definitions = append(x.batch.Definitions, def)
		}
	}
	if x.batch == nil {
		var err error
		if x.batch, err = model.NewBatch(x.file, uris...); err != nil {
			return x.fail(0, "NamespaceUris", err)
		}
	}
	return nil
}

// resolve reads a node id that may be given as an alias.
func (x *xmlReader) resolve(s string) (nodeid.ExpandedNodeID, error) {
	s = strings.TrimSpace(s)
	if v, ok := x.aliases[s]; ok {
		s = v
	}
	if v, ok := standardReferences[s]; ok {
		return nodeid.Expand(nodeid.NewNumeric(0, v)), nil
	}
	return nodeid.ParseExpanded(s)
}

func (x *xmlReader) definition(class ua.NodeClass, n xmlNode) (model.Definition, error) {
	def := model.Definition{NodeClass: class, IsAbstract: n.IsAbstract, IsSymmetric: n.Symmetric}
	var err error
	if def.ID, err = x.resolve(n.NodeID); err != nil {
		return def, &ParseError{Field: "NodeId", Err: err}
	}
	// BrowseName is a qualified name "<index>:<name>"; the namespace index
	// follows the node id
	def.BrowseName = n.BrowseName
	if i := strings.IndexByte(n.BrowseName, ':'); i > 0 && isDigits(n.BrowseName[:i]) {
		def.BrowseName = n.BrowseName[i+1:]
	}
	if len(n.DisplayName) > 0 {
		def.DisplayName = strings.TrimSpace(n.DisplayName[0])
	}
	if len(n.InverseName) > 0 {
		def.InverseName = strings.TrimSpace(n.InverseName[0])
	}

	var parent nodeid.ExpandedNodeID
	if n.ParentNodeID != "" {
		if parent, err = x.resolve(n.ParentNodeID); err != nil {
			return def, &ParseError{Field: "ParentNodeId", Err: err}
		}
	}
	for _, ref := range n.References {
		rt, err := x.resolve(ref.ReferenceType)
		if err != nil {
			return def, &ParseError{Field: "ReferenceType", Err: err}
		}
		target, err := x.resolve(ref.Target)
		if err != nil {
			return def, &ParseError{Field: "Reference", Err: err}
		}
		switch {
		case isBase(rt, id.HasSubtype) && !ref.forward():
			def.Parent = subtypeOf(target)
		case isBase(rt, id.HasTypeDefinition) && ref.forward():
			def.TypeDefinition = target
		case !ref.forward() && target == parent && !parent.IsNull():
			def.Parent = &model.Relation{Parent: parent, ReferenceType: rt}
		default:
			log.WithField("file", x.file).Debugf("%s: skipping %s reference to %s", def.ID, ref.ReferenceType, target)
		}
	}
	if def.Parent == nil && !parent.IsNull() {
		def.Parent = &model.Relation{Parent: parent}
	}
	return def, nil
}

func isBase(e nodeid.ExpandedNodeID, v uint32) bool {
	return e.NamespaceURI == "" && e.NodeID == nodeid.NewNumeric(0, v)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

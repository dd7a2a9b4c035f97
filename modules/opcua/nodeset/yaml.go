package nodeset

import (
	"io"
	"io/ioutil"
	"strconv"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type yamlNode struct {
	ID             string `yaml:"id"`
	BrowseName     string `yaml:"browseName"`
	DisplayName    string `yaml:"displayName,omitempty"`
	Class          string `yaml:"class"`
	Parent         string `yaml:"parent,omitempty"`
	Reference      string `yaml:"reference,omitempty"`
	TypeDefinition string `yaml:"typeDefinition,omitempty"`
	Abstract       bool   `yaml:"abstract,omitempty"`
	Symmetric      bool   `yaml:"symmetric,omitempty"`
	InverseName    string `yaml:"inverseName,omitempty"`
}

type yamlModel struct {
	Namespaces []string   `yaml:"namespaces"`
	Nodes      []yamlNode `yaml:"nodes"`
}

// ReadYAML reads the format written by Export. Node ids are relative to the
// namespaces list; index 1 is its first entry.
func ReadYAML(name string, r io.Reader) (*model.Batch, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	var doc yamlModel
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, &ParseError{File: name, Err: errors.Wrap(ErrMalformed, err.Error())}
	}
	batch, err := model.NewBatch(name, doc.Namespaces...)
	if err != nil {
		return nil, &ParseError{File: name, Field: "namespaces", Err: err}
	}
	for i, n := range doc.Nodes {
		def, err := n.definition()
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.File = name
				pe.Field = nodeField(i, pe.Field)
				return nil, pe
			}
			return nil, &ParseError{File: name, Field: nodeField(i, ""), Err: err}
		}
		batch.Definitions = append(batch.Definitions, def)
	}
	return batch, nil
}

func nodeField(i int, field string) string {
	s := "nodes[" + strconv.Itoa(i) + "]"
	if field != "" {
		s += "." + field
	}
	return s
}

func parseOptional(field, s string) (nodeid.ExpandedNodeID, error) {
	if s == "" {
		return nodeid.ExpandedNodeID{}, nil
	}
	e, err := nodeid.ParseExpanded(s)
	if err != nil {
		return e, &ParseError{Field: field, Err: err}
	}
	return e, nil
}

func (n yamlNode) definition() (model.Definition, error) {
	class, ok := registry.ParseClass(n.Class)
	if !ok {
		return model.Definition{}, &ParseError{Field: "class", Err: errors.Wrapf(ErrMalformed, "unknown node class %q", n.Class)}
	}
	def := model.Definition{
		BrowseName:  n.BrowseName,
		DisplayName: n.DisplayName,
		NodeClass:   class,
		IsAbstract:  n.Abstract,
		IsSymmetric: n.Symmetric,
		InverseName: n.InverseName,
	}
	var err error
	if def.ID, err = parseOptional("id", n.ID); err != nil {
		return def, err
	}
	if def.TypeDefinition, err = parseOptional("typeDefinition", n.TypeDefinition); err != nil {
		return def, err
	}
	parent, err := parseOptional("parent", n.Parent)
	if err != nil {
		return def, err
	}
	ref, err := parseOptional("reference", n.Reference)
	if err != nil {
		return def, err
	}
	if !parent.IsNull() {
		def.Parent = &model.Relation{Parent: parent, ReferenceType: ref}
	}
	return def, nil
}

// Export writes the nodes of m outside the base namespace in the format
// ReadYAML reads. The reference type of an instance declaration is not kept.
func Export(w io.Writer, m *model.Model) error {
	b := m.Batch("export")
	doc := yamlModel{Namespaces: b.Namespaces.URIs()[1:]}
	for _, def := range b.Definitions {
		n := yamlNode{
			ID:             def.ID.String(),
			BrowseName:     def.BrowseName,
			DisplayName:    def.DisplayName,
			Class:          registry.ClassName(def.NodeClass),
			Abstract:       def.IsAbstract,
			Symmetric:      def.IsSymmetric,
			InverseName:    def.InverseName,
			TypeDefinition: optionalString(def.TypeDefinition),
		}
		if def.Parent != nil {
			n.Parent = def.Parent.Parent.String()
			n.Reference = optionalString(def.Parent.ReferenceType)
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.Wrap(err, "encoding yaml")
	}
	_, err = w.Write(out)
	return err
}

func optionalString(e nodeid.ExpandedNodeID) string {
	if e.IsNull() {
		return ""
	}
	return e.String()
}

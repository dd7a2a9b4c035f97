// Package codegen writes Go constants for the node identifiers of one
// namespace of a model.
package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/pkg/errors"
)

var ErrNoNodes = errors.New("namespace has no nodes")

type Options struct {
	Package      string
	NamespaceURI string
	// Generator is named in the generated file header.
	Generator string
}

// Constant is one generated identifier.
type Constant struct {
	Name  string
	Class string
	ID    nodeid.NodeID
}

// Constants returns the identifiers of the nodes in namespaceURI, grouped by
// node class in registry order and sorted by node id within a class.
// Instance declarations are named by the "_"-joined browse path from the
// type that declares them, the form ResolveConstant accepts.
func Constants(m *model.Model, namespaceURI string) ([]Constant, error) {
	ns, err := m.NamespaceIndex(namespaceURI)
	if err != nil {
		return nil, err
	}
	var out []Constant
	used := make(map[string]bool)
	for _, c := range registry.NodeClasses {
		m.AllOfClass(c).Each(func(rec *registry.Record) bool {
			if rec.ID.Namespace() != ns {
				return true
			}
			name := identifier(symbolicName(m, rec))
			if used[name] {
				name = fmt.Sprintf("%s_%s", name, idSuffix(rec.ID))
			}
			used[name] = true
			out = append(out, Constant{Name: name, Class: registry.ClassName(c), ID: rec.ID})
			return true
		})
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoNodes, "%s", namespaceURI)
	}
	return out, nil
}

func symbolicName(m *model.Model, rec *registry.Record) string {
	parts := []string{rec.BrowseName}
	seen := map[nodeid.NodeID]bool{rec.ID: true}
	for p := rec.Parent; !p.IsNull() && !seen[p]; {
		seen[p] = true
		parent, ok := m.ByID(p)
		if !ok {
			break
		}
		parts = append(parts, parent.BrowseName)
		p = parent.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "_")
}

// identifier maps a symbolic name onto a Go identifier.
func identifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || !unicode.IsLetter([]rune(out)[0]) {
		out = "N" + out
	}
	if !unicode.IsUpper([]rune(out)[0]) {
		out = strings.ToUpper(out[:1]) + out[1:]
	}
	return out
}

func idSuffix(n nodeid.NodeID) string {
	if n.Kind() == nodeid.Numeric {
		return strconv.FormatUint(uint64(n.IntID()), 10)
	}
	return identifier(n.StringID())
}

// Generate writes a gofmt'ed Go file with one const block per node class.
// Numeric identifiers are uint32 constants, string identifiers untyped
// string constants.
func Generate(w io.Writer, m *model.Model, opts Options) error {
	if opts.Package == "" {
		return errors.New("package name required")
	}
	consts, err := Constants(m, opts.NamespaceURI)
	if err != nil {
		return err
	}
	gen := opts.Generator
	if gen == "" {
		gen = "uanodes generate"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by %s; DO NOT EDIT.\n\n", gen)
	fmt.Fprintf(&buf, "package %s\n\n", opts.Package)
	fmt.Fprintf(&buf, "// NamespaceURI is the namespace of the identifiers below.\n")
	fmt.Fprintf(&buf, "const NamespaceURI = %q\n", opts.NamespaceURI)

	class := ""
	for _, c := range consts {
		if c.Class != class {
			if class != "" {
				buf.WriteString(")\n")
			}
			class = c.Class
			fmt.Fprintf(&buf, "\n// %s identifiers.\nconst (\n", class)
		}
		switch c.ID.Kind() {
		case nodeid.Numeric:
			fmt.Fprintf(&buf, "%s uint32 = %d\n", c.Name, c.ID.IntID())
		case nodeid.String:
			fmt.Fprintf(&buf, "%s = %q\n", c.Name, c.ID.StringID())
		default:
			fmt.Fprintf(&buf, "%s = %q\n", c.Name, c.ID.String())
		}
	}
	buf.WriteString(")\n")

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "formatting generated code")
	}
	_, err = w.Write(src)
	return err
}

package nodeset

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

type csvRow struct {
	line   int
	fields []string
}

func (r csvRow) col(i int) string {
	if i < len(r.fields) {
		return strings.TrimSpace(r.fields[i])
	}
	return ""
}

// ReadCSV reads a ModelCompiler identifier file:
//
//	# namespace http://opcfoundation.org/UA/Robotics/
//	# uses http://opcfoundation.org/UA/DI/
//	SymbolicName,Identifier,NodeClass[,SuperType|TypeDefinition[,InverseName[,Symmetric]]]
//
// Node ids of the file's own entries are in namespaceURI, or in the namespace
// named by the "# namespace" line when namespaceURI is empty. Further "# uses"
// lines number foreign namespaces from index 2 for ids in the fourth column.
// Instance declarations hang below the longest "_"-separated prefix of their
// symbolic name that the file defines.
func ReadCSV(name string, r io.Reader, namespaceURI string) (*model.Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	own := namespaceURI
	var uses []string
	var rows []csvRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			pe := &ParseError{File: name, Err: errors.Wrap(ErrMalformed, err.Error())}
			if ce, ok := err.(*csv.ParseError); ok {
				pe.Line = ce.Line
				pe.Err = errors.Wrap(ErrMalformed, ce.Err.Error())
			}
			return nil, pe
		}
		line, _ := cr.FieldPos(0)
		if strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			words := strings.Fields(strings.TrimPrefix(strings.TrimSpace(strings.Join(rec, ",")), "#"))
			if len(words) == 2 {
				switch words[0] {
				case "namespace":
					if own == "" {
						own = words[1]
					}
				case "uses":
					uses = append(uses, words[1])
				}
			}
			continue
		}
		rows = append(rows, csvRow{line: line, fields: rec})
	}
	if own == "" {
		return nil, &ParseError{File: name, Err: ErrMissingNamespace}
	}
	batch, err := model.NewBatch(name, append([]string{own}, uses...)...)
	if err != nil {
		return nil, &ParseError{File: name, Field: "namespace", Err: err}
	}

	ids := make(map[string]nodeid.ExpandedNodeID, len(rows))
	for _, row := range rows {
		sym := row.col(0)
		if len(row.fields) < 3 || sym == "" {
			return nil, &ParseError{File: name, Line: row.line, Err: errors.Wrap(ErrMalformed, "want at least SymbolicName,Identifier,NodeClass")}
		}
		if _, ok := ids[sym]; ok {
			return nil, &ParseError{File: name, Line: row.line, Field: "SymbolicName", Err: errors.Wrapf(ErrMalformed, "%q defined twice", sym)}
		}
		ident := row.col(1)
		if ident == "" {
			return nil, &ParseError{File: name, Line: row.line, Field: "Identifier", Err: errors.Wrap(ErrMalformed, "empty identifier")}
		}
		if n, err := strconv.ParseUint(ident, 10, 32); err == nil {
			ids[sym] = nodeid.Expand(nodeid.NewNumeric(1, uint32(n)))
		} else {
			ids[sym] = nodeid.Expand(nodeid.NewString(1, ident))
		}
	}

	for _, row := range rows {
		def, err := csvDefinition(row, ids)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.File = name
				pe.Line = row.line
				return nil, pe
			}
			return nil, &ParseError{File: name, Line: row.line, Err: err}
		}
		batch.Definitions = append(batch.Definitions, def)
	}
	return batch, nil
}

func csvDefinition(row csvRow, ids map[string]nodeid.ExpandedNodeID) (model.Definition, error) {
	sym := row.col(0)
	class, ok := registry.ParseClass(row.col(2))
	if !ok {
		return model.Definition{}, &ParseError{Field: "NodeClass", Err: errors.Wrapf(ErrMalformed, "unknown node class %q", row.col(2))}
	}
	def := model.Definition{ID: ids[sym], NodeClass: class}

	if registry.IsTypeClass(class) {
		def.BrowseName = sym
		super := defaultSupertype[class]
		if s := row.col(3); s != "" {
			var err error
			if super, err = nodeid.ParseExpanded(s); err != nil {
				return def, &ParseError{Field: "SuperType", Err: err}
			}
		}
		def.Parent = subtypeOf(super)
		if class == ua.NodeClassReferenceType {
			def.InverseName = row.col(4)
			if s := row.col(5); s != "" {
				v, err := strconv.ParseBool(s)
				if err != nil {
					return def, &ParseError{Field: "Symmetric", Err: errors.Wrap(ErrMalformed, err.Error())}
				}
				def.IsSymmetric = v
			}
		}
		return def, nil
	}

	def.BrowseName = sym
	for i := len(sym) - 1; i > 0; i-- {
		if sym[i] != '_' {
			continue
		}
		if parent, ok := ids[sym[:i]]; ok {
			def.BrowseName = sym[i+1:]
			def.Parent = &model.Relation{Parent: parent}
			break
		}
	}
	if s := row.col(3); s != "" {
		td, err := nodeid.ParseExpanded(s)
		if err != nil {
			return def, &ParseError{Field: "TypeDefinition", Err: err}
		}
		def.TypeDefinition = td
	}
	return def, nil
}

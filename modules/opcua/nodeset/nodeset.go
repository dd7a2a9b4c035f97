// Package nodeset reads model definitions from files: ModelCompiler
// identifier CSVs, NodeSet2 XML and the YAML format written by Export.
package nodeset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

var (
	ErrUnknownFormat    = errors.New("unknown model file format")
	ErrMissingNamespace = errors.New("model file does not name its namespace")
	ErrMalformed        = errors.New("malformed entry")
)

// ParseError locates an entry that could not be read.
type ParseError struct {
	File  string
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	pos := e.File
	if e.Line > 0 {
		pos = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", pos, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", pos, e.Err)
}

func (e *ParseError) Cause() error  { return e.Err }
func (e *ParseError) Unwrap() error { return e.Err }

// Open reads the model file at path, choosing the reader by extension.
func Open(path string) (*model.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path, f, "")
	case ".xml":
		return ReadXML(path, f)
	case ".yaml", ".yml":
		return ReadYAML(path, f)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
	}
}

// File is a model.Source reading one model file.
type File struct {
	Path string
}

func (f File) Name() string { return f.Path }

func (f File) Load(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := Open(f.Path)
	if err != nil {
		return nil, err
	}
	uanodes.ContextLogger(ctx).Debugf("Read %d definitions from %s", len(b.Definitions), f.Path)
	return b, nil
}

// Supertypes assumed for types whose file does not name one.
var defaultSupertype = map[ua.NodeClass]nodeid.ExpandedNodeID{
	ua.NodeClassObjectType:    nodeid.Expand(nodeid.NewNumeric(0, id.BaseObjectType)),
	ua.NodeClassVariableType:  nodeid.Expand(nodeid.NewNumeric(0, id.BaseDataVariableType)),
	ua.NodeClassDataType:      nodeid.Expand(nodeid.NewNumeric(0, id.BaseDataType)),
	ua.NodeClassReferenceType: nodeid.Expand(nodeid.NewNumeric(0, id.NonHierarchicalReferences)),
}

// standardReferences names the base reference types NodeSet2 files may use
// without declaring an alias.
var standardReferences = map[string]uint32{
	"HasSubtype":          id.HasSubtype,
	"HasComponent":        id.HasComponent,
	"HasOrderedComponent": id.HasOrderedComponent,
	"HasProperty":         id.HasProperty,
	"HasTypeDefinition":   id.HasTypeDefinition,
	"HasModellingRule":    id.HasModellingRule,
	"HasEncoding":         id.HasEncoding,
	"HasDescription":      id.HasDescription,
	"HasNotifier":         id.HasNotifier,
	"HasEventSource":      id.HasEventSource,
	"GeneratesEvent":      id.GeneratesEvent,
	"Organizes":           id.Organizes,
	"Aggregates":          id.Aggregates,
	"HasChild":            id.HasChild,
}

func subtypeOf(parent nodeid.ExpandedNodeID) *model.Relation {
	return &model.Relation{Parent: parent, ReferenceType: nodeid.Expand(model.HasSubtype)}
}

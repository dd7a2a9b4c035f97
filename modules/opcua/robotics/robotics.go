// Package robotics bundles the OPC UA Device Integration and Robotics
// companion models and the Go constants generated from them.
package robotics

//go:generate go run ../../../cmd/uanodes --bundled --namespace http://opcfoundation.org/UA/Robotics/ --package robotics --output nodes.go generate

import (
	"context"
	"embed"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/nodeset"
	"github.com/pkg/errors"
)

const DIURI = "http://opcfoundation.org/UA/DI/"

//go:embed models/*.csv
var models embed.FS

// Bundled is a model.Source serving one embedded model file.
type Bundled struct {
	File string
}

func (b Bundled) Name() string { return "bundled:" + b.File }

func (b Bundled) Load(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := models.Open("models/" + b.File)
	if err != nil {
		return nil, errors.Wrapf(err, "bundled model %s", b.File)
	}
	defer f.Close()
	return nodeset.ReadCSV(b.Name(), f, "")
}

// Sources returns the bundled models in load order.
func Sources() []model.Source {
	return []model.Source{Bundled{File: "di.csv"}, Bundled{File: "robotics.csv"}}
}

// ID returns the node id of a generated identifier in m.
func ID(m *model.Model, identifier uint32) (nodeid.NodeID, error) {
	return m.ResolveExpanded(nodeid.NewExpanded(NamespaceURI, nodeid.NewNumeric(0, identifier)))
}

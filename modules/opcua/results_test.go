package opcua_test

import (
	"context"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	infra "github.com/comsys/uanodes/modules/opcua/test"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

type ReportSuite struct{}

var _ = Suite(&ReportSuite{})

type failingSource struct{}

func (failingSource) Name() string { return "broken" }

func (failingSource) Load(ctx context.Context) (*model.Batch, error) {
	return nil, errors.New("file vanished")
}

func (s *ReportSuite) TestReportDescribesModel(c *C) {
	src := model.BatchSource{Batch: infra.RoboticsBatch()}
	m, report, err := uanodes.LoadModel(context.Background(), []model.Source{src}, model.WithServerURI(infra.ServerURI))
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)

	c.Check(report.OK, Equals, true)
	c.Check(report.AbortStage, Equals, "")
	c.Check(report.Namespaces, DeepEquals, []string{"http://opcfoundation.org/UA/", infra.ServerURI, infra.DIURI, infra.RoboticsURI})
	c.Check(report.Nodes, Equals, m.Len())
	c.Check(report.NodesByClass["Method"], Equals, 1)
	c.Check(report.NodesByClass["ReferenceType"] > 6, Equals, true)
	c.Check(report.Types > 0, Equals, true)
	c.Assert(report.Sources, HasLen, 1)
	c.Check(report.Sources[0].Name, Equals, "robotics-fixture")
	c.Check(report.Sources[0].Definitions, Equals, len(infra.Fixture))
	c.Check(report.BuiltAt, Equals, m.BuiltAt)
}

func (s *ReportSuite) TestReportNamesFailedStage(c *C) {
	dup := infra.RoboticsBatch()
	dup.Definitions = append(dup.Definitions, dup.Definitions[0])

	dangling := infra.RoboticsBatch()
	dangling.Definitions = append(dangling.Definitions, model.Definition{
		ID:         nodeid.Expand(nodeid.NewNumeric(infra.NsRobotics, 4242)),
		BrowseName: "Orphan",
		NodeClass:  ua.NodeClassObject,
		Parent:     &model.Relation{Parent: nodeid.Expand(nodeid.NewNumeric(infra.NsRobotics, 4243))},
	})

	tests := []struct {
		sources []model.Source
		stage   string
		cause   error
	}{
		{[]model.Source{failingSource{}}, "load broken", nil},
		{[]model.Source{model.BatchSource{Batch: dup}}, "define robotics-fixture", registry.ErrDuplicateNodeID},
		{[]model.Source{model.BatchSource{Batch: dangling}}, "build", model.ErrDanglingReference},
	}
	for _, t := range tests {
		m, report, err := uanodes.LoadModel(context.Background(), t.sources)
		c.Check(m, IsNil)
		c.Assert(err, NotNil)
		c.Check(report.OK, Equals, false)
		c.Check(report.AbortStage, Equals, t.stage)
		c.Check(report.ErrorMsg, Equals, err.Error())
		if t.cause != nil {
			c.Check(errors.Cause(err), Equals, t.cause)
		}
	}
}

func (s *ReportSuite) TestBootstrapFailure(c *C) {
	_, report, err := uanodes.LoadModel(context.Background(), nil, model.WithServerURI(namespaceBase))
	c.Assert(err, NotNil)
	c.Check(report.AbortStage, Equals, "bootstrap")
}

const namespaceBase = "http://opcfoundation.org/UA/"

package opcua_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/registry"
	infra "github.com/comsys/uanodes/modules/opcua/test"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type LookupSuite struct {
	model *model.Model
	l     *uanodes.Lookup
}

var _ = Suite(&LookupSuite{})

func loadRobotics(c *C, extra ...model.Definition) *model.Model {
	batch := infra.RoboticsBatch()
	batch.Definitions = append(batch.Definitions, extra...)
	m, _, err := uanodes.LoadModel(context.Background(), []model.Source{model.BatchSource{Batch: batch}}, model.WithServerURI(infra.ServerURI))
	c.Assert(err, IsNil)
	return m
}

func (s *LookupSuite) SetUpTest(c *C) {
	s.model = loadRobotics(c)
	s.l = uanodes.NewLookup(s.model)
}

func (s *LookupSuite) TestResolveConstant(c *C) {
	n, err := s.l.ResolveConstant(infra.RoboticsURI, "MotionDeviceSystemType")
	c.Assert(err, IsNil)
	c.Check(n, Equals, infra.MotionDeviceSystemType)

	n, err = s.l.ResolveConstant(infra.DIURI, "ComponentType")
	c.Assert(err, IsNil)
	c.Check(n, Equals, infra.ComponentType)
}

func (s *LookupSuite) TestResolveConstantAcceptsInstancePaths(c *C) {
	n, err := s.l.ResolveConstant(infra.RoboticsURI, "MotionDeviceSystemType_Controllers_Reset")
	c.Assert(err, IsNil)
	c.Check(n, Equals, infra.ResetMethod)
}

func (s *LookupSuite) TestResolveConstantUnknown(c *C) {
	_, err := s.l.ResolveConstant(infra.RoboticsURI, "NoSuchType")
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)

	_, err = s.l.ResolveConstant(infra.RoboticsURI, "MotionDeviceSystemType_NoSuchChild")
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)

	_, err = s.l.ResolveConstant("http://example.com/unknown/", "MotionDeviceSystemType")
	c.Check(err, NotNil)
}

func (s *LookupSuite) TestResolvePath(c *C) {
	n, err := s.l.ResolvePath(infra.RoboticsURI, "MotionDeviceSystemType", "MotionDevices")
	c.Assert(err, IsNil)
	c.Check(n, Equals, infra.MotionDevices)

	_, err = s.l.ResolvePath(infra.RoboticsURI, "MotionDeviceSystemType", "Axes")
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)
	c.Check(err, ErrorMatches, `.*MotionDeviceSystemType/Axes.*`)

	_, err = s.l.ResolvePath(infra.RoboticsURI)
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)
}

func (s *LookupSuite) TestDescribe(c *C) {
	rec, err := s.l.Describe(infra.Controllers)
	c.Assert(err, IsNil)
	c.Check(rec.BrowseName, Equals, "Controllers")
	c.Check(rec.NodeClass, Equals, ua.NodeClassObject)
	c.Check(rec.Parent, Equals, infra.MotionDeviceSystemType)
	c.Check(rec.TypeDefinition, Equals, nodeid.NewNumeric(0, id.FolderType))

	_, err = s.l.Describe(nodeid.NewNumeric(3, 99999))
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)
}

func (s *LookupSuite) TestDescribeExpanded(c *C) {
	rec, err := s.l.Snapshot().DescribeExpanded(nodeid.NewExpanded(infra.RoboticsURI, nodeid.NewNumeric(0, 1004)))
	c.Assert(err, IsNil)
	c.Check(rec.ID, Equals, infra.MotionDeviceType)
}

func (s *LookupSuite) TestSubtypesAndReferences(c *C) {
	c.Check(s.l.IsSubtypeOf(infra.ControllerType, infra.TopologyElementType), Equals, true)
	c.Check(s.l.IsSubtypeOf(infra.ControllerType, infra.ControllerType), Equals, true)
	c.Check(s.l.IsSubtypeOf(infra.TopologyElementType, infra.ControllerType), Equals, false)

	name, ok := s.l.InverseReferenceName(infra.Controls)
	c.Check(ok, Equals, true)
	c.Check(name, Equals, "IsControlledBy")
	name, ok = s.l.InverseReferenceName(infra.IsConnectedTo)
	c.Check(ok, Equals, true)
	c.Check(name, Equals, "IsConnectedTo")
	_, ok = s.l.InverseReferenceName(infra.ControllerType)
	c.Check(ok, Equals, false)
}

func (s *LookupSuite) TestBelongsToType(c *C) {
	c.Check(s.l.BelongsToType(infra.ResetMethod, infra.MotionDeviceSystemType), Equals, true)
	c.Check(s.l.BelongsToType(infra.ResetMethod, infra.ComponentType), Equals, true)
	c.Check(s.l.BelongsToType(infra.ResetMethod, infra.ControllerType), Equals, false)
	c.Check(s.l.BelongsToType(infra.Controllers, nodeid.NewNumeric(0, id.FolderType)), Equals, true)
	c.Check(s.l.BelongsToType(nodeid.NewNumeric(3, 99999), infra.MotionDeviceSystemType), Equals, false)
}

func (s *LookupSuite) TestAllOfClass(c *C) {
	var names []string
	s.l.AllOfClass(ua.NodeClassMethod).Each(func(rec *registry.Record) bool {
		names = append(names, rec.BrowseName)
		return true
	})
	c.Check(names, DeepEquals, []string{"Reset"})
}

func (s *LookupSuite) TestEmptyLookup(c *C) {
	l := new(uanodes.Lookup)
	c.Check(l.Generation(), Equals, uint64(0))
	c.Check(l.Snapshot(), IsNil)
	_, err := l.ResolveConstant(infra.RoboticsURI, "MotionDeviceSystemType")
	c.Check(err, Equals, uanodes.ErrNoModel)
	_, err = l.Describe(infra.Controllers)
	c.Check(err, Equals, uanodes.ErrNoModel)
	_, ok := l.ByID(infra.Controllers)
	c.Check(ok, Equals, false)
	c.Check(l.AllOfClass(ua.NodeClassObject).Len(), Equals, 0)
	c.Check(l.Reload(nil), Equals, uint64(0))
}

func (s *LookupSuite) TestReloadBumpsGeneration(c *C) {
	c.Check(s.l.Generation(), Equals, uint64(1))
	pinned := s.l.Snapshot()

	next := loadRobotics(c, safetyStateType)
	c.Check(s.l.Reload(next), Equals, uint64(2))
	c.Check(s.l.Reload(nil), Equals, uint64(2))

	_, err := pinned.ResolveConstant(infra.RoboticsURI, "SafetyStateType")
	c.Check(errors.Cause(err), Equals, uanodes.ErrNodeNotFound)
	_, err = s.l.ResolveConstant(infra.RoboticsURI, "SafetyStateType")
	c.Check(err, IsNil)
}

var safetyStateType = model.Definition{
	ID:         nodeid.Expand(nodeid.NewNumeric(infra.NsRobotics, 1013)),
	BrowseName: "SafetyStateType",
	NodeClass:  ua.NodeClassObjectType,
	Parent: &model.Relation{
		Parent:        nodeid.Expand(nodeid.NewNumeric(infra.NsDI, 15063)),
		ReferenceType: nodeid.Expand(model.HasSubtype),
	},
}

func (s *LookupSuite) TestConcurrentReloadIsAtomic(c *C) {
	a := s.model
	b := loadRobotics(c, safetyStateType)

	var wg sync.WaitGroup
	failures := make(chan string, 100)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				s.l.Reload(b)
			} else {
				s.l.Reload(a)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for j := 0; j < 20; j++ {
				snap := s.l.Snapshot()
				if snap.Generation < last {
					failures <- "generation went backwards"
					return
				}
				last = snap.Generation
				_, err := snap.ResolveConstant(infra.RoboticsURI, "SafetyStateType")
				_, ok := snap.ByID(nodeid.NewNumeric(3, 1013))
				switch snap.Model {
				case a:
					if err == nil || ok {
						failures <- "generation A sees SafetyStateType"
						return
					}
				case b:
					if err != nil || !ok {
						failures <- "generation B misses SafetyStateType"
						return
					}
				default:
					failures <- "unknown model"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-done
	close(failures)

	var msgs []string
	for f := range failures {
		msgs = append(msgs, f)
	}
	c.Check(msgs, HasLen, 0, Commentf("%s", strings.Join(msgs, "; ")))
}

type MetricsSuite struct{}

var _ = Suite(&MetricsSuite{})

func (s *MetricsSuite) TestLookupsAndReloadsAreCounted(c *C) {
	reg := prometheus.NewRegistry()
	metrics, err := uanodes.NewMetrics(reg)
	c.Assert(err, IsNil)

	l := uanodes.NewLookup(loadRobotics(c), uanodes.WithMetrics(metrics))
	for _, name := range []string{"MotionDeviceSystemType", "ControllerType", "NoSuchType"} {
		l.ResolveConstant(infra.RoboticsURI, name)
	}
	// predicates are counted by their answer, not by whether nodes exist
	c.Check(l.IsSubtypeOf(infra.ControllerType, infra.TopologyElementType), Equals, true)
	c.Check(l.IsSubtypeOf(infra.TopologyElementType, infra.ControllerType), Equals, false)
	c.Check(l.IsSubtypeOf(infra.TopologyElementType, infra.ControllerType), Equals, false)

	expected := `
# HELP uanodes_lookups_total Lookups by operation and result: hit or miss for node lookups, true or false for type predicates.
# TYPE uanodes_lookups_total counter
uanodes_lookups_total{op="is_subtype_of",result="false"} 2
uanodes_lookups_total{op="is_subtype_of",result="true"} 1
uanodes_lookups_total{op="resolve_constant",result="hit"} 2
uanodes_lookups_total{op="resolve_constant",result="miss"} 1
# HELP uanodes_model_generation Generation number of the model being served.
# TYPE uanodes_model_generation gauge
uanodes_model_generation 1
# HELP uanodes_model_namespaces Entries of the served namespace table.
# TYPE uanodes_model_namespaces gauge
uanodes_model_namespaces 4
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"uanodes_lookups_total", "uanodes_model_generation", "uanodes_model_namespaces")
	c.Check(err, IsNil)
}

func (s *MetricsSuite) TestRegisterTwiceFails(c *C) {
	reg := prometheus.NewRegistry()
	_, err := uanodes.NewMetrics(reg)
	c.Assert(err, IsNil)
	_, err = uanodes.NewMetrics(reg)
	c.Check(err, NotNil)
}

func (s *MetricsSuite) TestNilMetricsRecordNothing(c *C) {
	l := uanodes.NewLookup(loadRobotics(c), uanodes.WithMetrics(nil))
	_, err := l.ResolveConstant(infra.RoboticsURI, "MotionDeviceSystemType")
	c.Check(err, IsNil)
}

package opcua

import (
	"context"
	"time"

	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/registry"
)

// Report summarises one model load.
type Report struct {
	OK           bool           `json:"ok"`
	Namespaces   []string       `json:"namespaces,omitempty"`
	Nodes        int            `json:"nodes,omitempty"`
	NodesByClass map[string]int `json:"nodes_by_class,omitempty"`
	Types        int            `json:"subtype_edges,omitempty"`
	Sources      []SourceReport `json:"sources,omitempty"`
	LoadDuration time.Duration  `json:"load_duration,omitempty"`
	BuiltAt      time.Time      `json:"built_at,omitempty"`
	Generation   uint64         `json:"generation,omitempty"`
	ErrorMsg     string         `json:"errormsg,omitempty"`
	AbortStage   string         `json:"abort_stage,omitempty"`
}

type SourceReport struct {
	Name        string        `json:"name"`
	Definitions int           `json:"definitions"`
	Duration    time.Duration `json:"duration"`
}

func (r *Report) fail(stage string, err error) {
	r.OK = false
	r.AbortStage = stage
	r.ErrorMsg = err.Error()
}

func (r *Report) describe(m *model.Model) {
	r.OK = true
	r.Namespaces = m.NamespaceURIs()
	r.Nodes = m.Len()
	r.NodesByClass = make(map[string]int)
	counts := m.CountByClass()
	for _, c := range registry.NodeClasses {
		if counts[c] > 0 {
			r.NodesByClass[registry.ClassName(c)] = counts[c]
		}
		if registry.IsTypeClass(c) {
			m.AllOfClass(c).Each(func(rec *registry.Record) bool {
				if _, ok := m.Supertype(rec.ID); ok {
					r.Types++
				}
				return true
			})
		}
	}
	r.BuiltAt = m.BuiltAt
}

// LoadModel builds a model from sources in order. The report is filled in
// whether or not loading succeeds; on error it names the stage that failed.
func LoadModel(ctx context.Context, sources []model.Source, opts ...model.Option) (*model.Model, *Report, error) {
	tStart := time.Now()
	report := new(Report)
	cl := contextLogger(ctx)

	b, err := model.NewBuilder(append([]model.Option{model.WithLogger(cl)}, opts...)...)
	if err != nil {
		report.fail("bootstrap", err)
		return nil, report, err
	}
	for _, src := range sources {
		sctx := WithSource(ctx, src.Name())
		tSource := time.Now()
		batch, err := src.Load(sctx)
		if err != nil {
			report.fail("load "+src.Name(), err)
			return nil, report, err
		}
		if err := b.AddBatch(batch); err != nil {
			report.fail("define "+src.Name(), err)
			return nil, report, err
		}
		sr := SourceReport{Name: src.Name(), Definitions: len(batch.Definitions), Duration: time.Since(tSource)}
		report.Sources = append(report.Sources, sr)
		contextLogger(sctx).Infof("Loaded %d definitions in %s", sr.Definitions, sr.Duration)
	}
	m, err := b.Build()
	if err != nil {
		report.fail("build", err)
		return nil, report, err
	}
	report.describe(m)
	report.LoadDuration = time.Since(tStart)
	return m, report, nil
}

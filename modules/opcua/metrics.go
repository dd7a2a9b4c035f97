package opcua

import (
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of a Lookup. A nil *Metrics records
// nothing.
type Metrics struct {
	lookups    *prometheus.CounterVec
	reloads    prometheus.Counter
	generation prometheus.Gauge
	nodes      *prometheus.GaugeVec
	namespaces prometheus.Gauge
	builtAt    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg, if given.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uanodes",
			Name:      "lookups_total",
			Help:      "Lookups by operation and result: hit or miss for node lookups, true or false for type predicates.",
		}, []string{"op", "result"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uanodes",
			Name:      "reloads_total",
			Help:      "Model generations published.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uanodes",
			Name:      "model_generation",
			Help:      "Generation number of the model being served.",
		}),
		nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uanodes",
			Name:      "model_nodes",
			Help:      "Nodes of the served model by node class.",
		}, []string{"class"}),
		namespaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uanodes",
			Name:      "model_namespaces",
			Help:      "Entries of the served namespace table.",
		}),
		builtAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uanodes",
			Name:      "model_built_timestamp_seconds",
			Help:      "Time the served model was built.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.lookups, m.reloads, m.generation, m.nodes, m.namespaces, m.builtAt} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// observe counts a node lookup, found or not.
func (m *Metrics) observe(op string, found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	m.count(op, result)
}

// observeAnswer counts a predicate by the answer it gave.
func (m *Metrics) observeAnswer(op string, answer bool) {
	result := "false"
	if answer {
		result = "true"
	}
	m.count(op, result)
}

func (m *Metrics) count(op, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeReload(mdl *model.Model, gen uint64) {
	if m == nil {
		return
	}
	m.reloads.Inc()
	m.generation.Set(float64(gen))
	if mdl == nil {
		return
	}
	counts := mdl.CountByClass()
	for _, c := range registry.NodeClasses {
		m.nodes.WithLabelValues(registry.ClassName(c)).Set(float64(counts[c]))
	}
	m.namespaces.Set(float64(len(mdl.NamespaceURIs())))
	m.builtAt.Set(float64(mdl.BuiltAt.Unix()))
}

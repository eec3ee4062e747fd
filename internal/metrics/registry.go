package metrics

// Registry maps metric names to their sources. It is assembled once at
// startup; the delta path never branches on metric identifiers itself.
type Registry struct {
	sources map[string]Source
	names   []string
}

// NewRegistry builds the registry with every built-in metric source.
func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]Source)}
	r.register(ordersSource{})
	r.register(salesSource{})
	r.register(countSource{
		name:         MetricTotalSessions,
		dailyColumn:  "total_sessions",
		hourlyColumn: "number_of_sessions",
	})
	r.register(countSource{
		name:         MetricAtcSessions,
		dailyColumn:  "total_atc_sessions",
		hourlyColumn: "number_of_atc_sessions",
	})
	r.register(aovSource{})
	r.register(cvrSource{})
	return r
}

func (r *Registry) register(s Source) {
	r.sources[s.Name()] = s
	r.names = append(r.names, s.Name())
}

// Lookup returns the source for a metric name.
func (r *Registry) Lookup(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, &UnknownMetricError{Metric: name}
	}
	return s, nil
}

// Names lists registered metrics in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

package incident

import "context"

// MetricsSource looks up current gauges for a resource. The alert processor
// falls back to it when an alert carries no usable metrics blob.
type MetricsSource interface {
	Gauges(ctx context.Context, resource string) (map[string]float64, error)
}

// StaticMetrics is a canned in-memory source for demos and tests.
type StaticMetrics map[string]map[string]float64

func (s StaticMetrics) Gauges(_ context.Context, resource string) (map[string]float64, error) {
	gauges, ok := s[resource]
	if !ok {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64, len(gauges))
	for k, v := range gauges {
		out[k] = v
	}
	return out, nil
}

package metrics

import (
	"fmt"
	"strings"
)

// Totals sums every series of a counter family in the service registry,
// keyed by the joined label values. name is the metric name without the
// namespace and subsystem prefix. A family that has not been observed yet
// yields an empty map.
func Totals(name string) (map[string]float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}

	full := globalManager.namespace + "_" + globalManager.subsystem + "_" + name
	out := make(map[string]float64)
	for _, fam := range families {
		if fam.GetName() != full {
			continue
		}
		for _, m := range fam.GetMetric() {
			values := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				values = append(values, lp.GetValue())
			}
			out[strings.Join(values, "/")] += m.GetCounter().GetValue()
		}
	}
	return out, nil
}

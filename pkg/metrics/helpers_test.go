package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type labels map[string]string

// sample returns the first series of the named family carrying every label
// in want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want labels) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m.GetLabel(), want) {
				return m
			}
		}
	}
	require.Failf(t, "series not found", "%s%v", name, want)
	return nil
}

func hasLabels(pairs []*dto.LabelPair, want labels) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

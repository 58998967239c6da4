package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// counterValue reads the current value of a Prometheus counter for GetStats
// replies. client_golang deliberately has no public Value() accessor on
// Counter; testutil.ToFloat64 is the exported, supported way to read one
// back without scraping HTTP.
func counterValue(c prometheus.Counter) float64 {
	return testutil.ToFloat64(c)
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler, grounded on the teacher's
// metrics.Handler/RegisterHandlers pair.
func Handler() http.Handler {
	return promhttp.Handler()
}

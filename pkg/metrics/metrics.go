// Package metrics holds the Prometheus collectors shared by the API and the
// workers. Every constructor accepts a nil registerer and then returns a
// collector whose methods are no-ops.
package metrics

const namespace = "locallink"

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

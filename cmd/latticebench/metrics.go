package main

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// registry collects every scenario-run Manager's counters when -metrics is
// passed, so the scenario's reclamation instrumentation (pkg/smr/counters.go)
// can be inspected the same way a host process running this library would
// via its own Prometheus registry.
var registry = prometheus.NewRegistry()

var metricsEnabled bool

// extractMetricsFlag pulls -metrics/--metrics out of a scenario's argument
// list before the remaining flags reach that scenario's own pflag.FlagSet,
// which would otherwise reject the unrecognized flag.
func extractMetricsFlag(args []string) []string {
	rest := args[:0:0]
	for _, a := range args {
		if a == "-metrics" || a == "--metrics" {
			metricsEnabled = true
			continue
		}
		rest = append(rest, a)
	}
	return rest
}

// dumpMetrics writes every counter collected by registry in Prometheus text
// exposition format.
func dumpMetrics(w io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			return err
		}
	}
	return nil
}

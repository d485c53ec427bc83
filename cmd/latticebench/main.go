// cmd/latticebench/main.go
//
// latticebench - stress-test and demo driver for the lattice concurrent
// data structures.
//
// Usage:
//
//	latticebench <scenario> [flags]
//
// Scenarios: table, queue, race, view. Run with -h after a scenario name
// for its flags. Pass -metrics after the scenario name to dump the run's
// reclamation counters in Prometheus text format once it finishes.
package main

import (
	"fmt"
	"os"

	"lattice/pkg/smr"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	scenario := os.Args[1]
	args := extractMetricsFlag(os.Args[2:])

	var err error
	switch scenario {
	case "table":
		err = runTableScenario(args)
	case "queue":
		err = runQueueScenario(args)
	case "race":
		err = runRaceScenario(args)
	case "view":
		err = runViewScenario(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "latticebench: unknown scenario %q\n", scenario)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "latticebench: %v\n", err)
		os.Exit(1)
	}

	if metricsEnabled {
		if err := dumpMetrics(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "latticebench: metrics: %v\n", err)
			os.Exit(1)
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `latticebench - lattice concurrent data structure stress driver

Usage:
  latticebench table --threads N -n N    concurrent inserts + single-threaded read-back
  latticebench queue --producers N -n N  concurrent producers, single drain
  latticebench race                      two threads racing put(h, A) / put(h, B)
  latticebench view                      insert/update/view ordering demo

Add -metrics to any scenario to dump its SMR counters afterward.`)
}

func newManager() *smr.Manager {
	m := smr.NewManager(smr.DefaultConfig())
	if metricsEnabled {
		registry.MustRegister(m.PrometheusCollector())
	}
	return m
}

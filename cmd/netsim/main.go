// -*- tab-width:2 -*-

// Package main runs a simulation described in a yaml or json
// scenario file and writes the flow statistics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // for profiling
	"os"

	count "github.com/jayalane/go-counter"
	ll "github.com/jayalane/go-lll"
	sim "github.com/jayalane/go-netsim"
)

var errNoScenario = errors.New("--scenario is required")

type options struct {
	desc        *sim.ScenarioDesc
	outFile     string
	metricsFile string
	logLevel    string
	pprofAddr   string
}

// parseFlags also reads the scenario file so a bad one is a usage
// error.
func parseFlags(args []string, errOut io.Writer) (*options, error) {
	o := options{}
	scenarioFile := ""
	fs := flag.NewFlagSet("netsim", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&scenarioFile, "scenario", "", "scenario description (.yaml or .json)")
	fs.StringVar(&o.outFile, "out", "", "flow statistics file (.yaml, .json, or xml for anything else)")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "flow metrics in prometheus text format")
	fs.StringVar(&o.logLevel, "log-level", "none", "none, network, state or all")
	fs.StringVar(&o.pprofAddr, "pprof-addr", "", "serve pprof on this address while running, e.g. :6060")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := sim.CheckLogLevel(o.logLevel); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}

	if scenarioFile == "" {
		return nil, errNoScenario
	}

	desc, err := sim.ReadScenarioDesc(scenarioFile)
	if err != nil {
		return nil, err
	}

	o.desc = desc

	return &o, nil
}

// run builds and runs the scenario; a scenario that does not build is
// reported as ErrBadScenario.
func run(o *options, out io.Writer) error {
	sc, err := o.desc.Build()
	if err != nil {
		if !errors.Is(err, sim.ErrBadScenario) {
			err = fmt.Errorf("%w: %w", sim.ErrBadScenario, err)
		}

		return err
	}
	defer sc.Destroy()

	if err := sc.Run(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: stopped at %s after %d events\n", sc.Name, sc.Loop.Now(), sc.Loop.Dispatched())

	if sc.Monitor == nil {
		return nil
	}

	return writeFlows(sc, out, o.outFile, o.metricsFile)
}

func writeFlows(sc *sim.Scenario, out io.Writer, outFile, metricsFile string) error {
	if err := sc.Monitor.WriteSummary(out); err != nil {
		return err
	}

	if outFile != "" {
		if err := sc.Monitor.WriteToFile(outFile, sc.Name, sc.Loop.Now()); err != nil {
			return err
		}
	}

	if metricsFile != "" {
		return sc.Monitor.WriteMetricsFile(metricsFile)
	}

	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(2) //nolint:mnd
	}

	ll.SetWriter(os.Stdout)
	sim.InitWithLogger(ll.Init("NETSIM", o.logLevel))
	count.SetResolution(count.HighRes)

	if o.pprofAddr != "" {
		go func() {
			fmt.Println(http.ListenAndServe(o.pprofAddr, nil)) //nolint:gosec
		}()
	}

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)

		if errors.Is(err, sim.ErrBadScenario) {
			os.Exit(2) //nolint:mnd
		}

		os.Exit(1)
	}

	count.LogCounters()
}

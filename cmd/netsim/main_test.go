// -*- tab-width:2 -*-
package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sim "github.com/jayalane/go-netsim"
)

const dumbbellFile = "../../scenarios/dumbbell.yaml"

func TestParseFlags(t *testing.T) {
	if _, err := parseFlags(nil, io.Discard); !errors.Is(err, errNoScenario) {
		t.Errorf("no scenario: %v", err)
	}

	o, err := parseFlags([]string{"--scenario", dumbbellFile}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	if o.desc.Name != "dumbbell" || o.logLevel != "none" || o.outFile != "" {
		t.Errorf("parsed %+v", o)
	}

	if _, err := parseFlags([]string{"--scenario", dumbbellFile, "--log-level=loud"}, io.Discard); !errors.Is(err, sim.ErrBadLogLevel) {
		t.Errorf("bad level: %v", err)
	}

	if _, err := parseFlags([]string{"--scenario", "nowhere.yaml"}, io.Discard); err == nil {
		t.Error("read a missing file")
	}

	if _, err := parseFlags([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("help: %v", err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	o, err := parseFlags([]string{
		"--scenario", dumbbellFile,
		"--out", filepath.Join(dir, "flows.yaml"),
		"--metrics-file", filepath.Join(dir, "flows.prom"),
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(o, &out); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"dumbbell: stopped at +100s", "Flow 1 (tcp", "Flow 2 (udp"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}

	for _, f := range []string{"flows.yaml", "flows.prom"} {
		if st, err := os.Stat(filepath.Join(dir, f)); err != nil || st.Size() == 0 {
			t.Errorf("%s: %v", f, err)
		}
	}

	// a node named twice fails to build
	o.desc.Nodes = append(o.desc.Nodes, "n0")

	if err := run(o, io.Discard); !errors.Is(err, sim.ErrBadScenario) {
		t.Errorf("duplicate node: %v", err)
	}
}

// -*- tab-width:2 -*-
package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	if o.delay != "2ms" || o.rate != "500kb/s" || !o.flowMonitor || o.xmlFile != "dumbbell.flowmon" {
		t.Errorf("defaults %+v", o)
	}

	for _, args := range [][]string{
		{"--delay=x"}, {"--delay=Inf"}, {"--delay=NaN"}, {"--data-rate=0bps"}, {"--log-level=x"},
	} {
		if _, err := parseFlags(args, io.Discard); err == nil {
			t.Errorf("%v accepted", args)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	o, err := parseFlags([]string{
		"--flowmon-xml", filepath.Join(dir, "out.flowmon"),
		"--metrics-file", filepath.Join(dir, "out.prom"),
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(o, &out); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"tcp-source sent 2975 packets, final rate 250Kbps",
		"udp-source sent 4507 packets, final rate 500Kbps",
		"Flow 2 (udp",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}

	for _, f := range []string{"out.flowmon", "out.prom"} {
		if st, err := os.Stat(filepath.Join(dir, f)); err != nil || st.Size() == 0 {
			t.Errorf("%s: %v", f, err)
		}
	}

	// without the monitor only the source lines are printed
	o.flowMonitor = false
	out.Reset()

	if err := run(o, &out); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(out.String(), "Flow 1") {
		t.Errorf("flows printed without a monitor:\n%s", out.String())
	}
}

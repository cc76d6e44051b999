package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParseArgs(t *testing.T) {
	o, err := parseArgs([]string{"--batch", "50", "--timeout", "30s", "--migrate", "--env-file", "prod.env"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if o.batch != 50 || o.timeout != 30*time.Second || !o.migrate || o.envFile != "prod.env" {
		t.Fatalf("options = %+v", o)
	}

	o, err = parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs defaults: %v", err)
	}
	if o.batch != 0 || o.timeout != time.Minute || o.migrate || o.envFile != ".env" {
		t.Fatalf("defaults = %+v", o)
	}

	if _, err := parseArgs([]string{"extra"}); err == nil || !strings.Contains(err.Error(), "unexpected argument") {
		t.Fatalf("extra argument err = %v", err)
	}
	if _, err := parseArgs([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("--help err = %v, want ErrHelp", err)
	}
}

func TestBatchFlagDescribesPaging(t *testing.T) {
	var o options
	usage := newFlagSet(&o).Lookup("batch").Usage
	if !strings.Contains(usage, "page size") || !strings.Contains(usage, "until none remain") {
		t.Fatalf("batch usage = %q", usage)
	}
	if strings.Contains(usage, "maximum") {
		t.Fatalf("batch usage still reads as a cap: %q", usage)
	}
}

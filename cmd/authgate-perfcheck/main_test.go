package main

import (
	"io"
	"reflect"
	"strings"
	"testing"
)

const baselineOutput = `goos: linux
BenchmarkIntrospect-8   	  300000	      4000 ns/op	    1800 B/op	      30 allocs/op
BenchmarkIntrospect-8   	  300000	      4200 ns/op	    1800 B/op	      30 allocs/op
BenchmarkLogin-8        	   20000	     60000 ns/op	    9000 B/op	     150 allocs/op
BenchmarkThrottle-8     	   40000	     30000 ns/op	    4000 B/op	      70 allocs/op
BenchmarkMetricsInc-8   	100000000	        10 ns/op	       0 B/op	       0 allocs/op
PASS
`

func parse(t *testing.T, s string) sampleSet {
	t.Helper()
	set, err := parseBenchmarks(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parseBenchmarks error: %v", err)
	}
	return set
}

func TestParseBenchmarks(t *testing.T) {
	set := parse(t, baselineOutput)

	if got := set["BenchmarkIntrospect"]["ns/op"]; !reflect.DeepEqual(got, []float64{4000, 4200}) {
		t.Fatalf("unexpected introspect ns/op %v", got)
	}
	if got := set["BenchmarkIntrospect"]["allocs/op"]; !reflect.DeepEqual(got, []float64{30, 30}) {
		t.Fatalf("unexpected introspect allocs/op %v", got)
	}
	if got := set["BenchmarkLogin"]["ns/op"]; !reflect.DeepEqual(got, []float64{60000}) {
		t.Fatalf("unexpected login ns/op %v", got)
	}
	if _, tracked := set["BenchmarkMetricsInc"]; tracked {
		t.Fatal("untracked benchmark must be skipped")
	}
}

func TestCompareWithinThreshold(t *testing.T) {
	base := parse(t, baselineOutput)
	if failures := compare(io.Discard, base, base, defaultThreshold); len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	base := parse(t, baselineOutput)
	slower := parse(t, strings.ReplaceAll(baselineOutput, "60000 ns/op", "90000 ns/op"))

	failures := compare(io.Discard, base, slower, defaultThreshold)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if !strings.Contains(failures[0], "BenchmarkLogin ns/op regressed") {
		t.Fatalf("unexpected failure %q", failures[0])
	}
}

func TestCompareMissingSamples(t *testing.T) {
	base := parse(t, baselineOutput)
	if failures := compare(io.Discard, base, sampleSet{}, defaultThreshold); len(failures) != 4 {
		t.Fatalf("expected 4 failures, got %v", failures)
	}
}

func TestNormalizeBenchmarkName(t *testing.T) {
	for in, want := range map[string]string{
		"BenchmarkLogin-16": "BenchmarkLogin",
		"BenchmarkLogin":    "BenchmarkLogin",
		"Benchmark-Odd-x":   "Benchmark-Odd-x",
	} {
		if got := normalizeBenchmarkName(in); got != want {
			t.Fatalf("normalizeBenchmarkName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestMedian(t *testing.T) {
	cases := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 2, 3}, 2.5},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := median(tc.in); got != tc.want {
			t.Fatalf("median(%v): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

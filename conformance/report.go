package conformance

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize/english"
	"github.com/logrusorgru/aurora/v4"
)

// Summary counts results by outcome.
type Summary struct {
	Total     int
	ByOutcome map[Outcome]int
	Elapsed   time.Duration
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), ByOutcome: make(map[Outcome]int)}
	var first, last time.Time
	for _, r := range results {
		s.ByOutcome[r.Outcome]++
		if r.Started.IsZero() {
			continue
		}
		if first.IsZero() || r.Started.Before(first) {
			first = r.Started
		}
		if end := r.Started.Add(r.Elapsed); end.After(last) {
			last = end
		}
	}
	if !first.IsZero() {
		s.Elapsed = last.Sub(first)
	}
	return s
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool {
	return s.ByOutcome[Pass] == s.Total
}

func (s Summary) String() string {
	parts := []string{fmt.Sprintf("%d passed", s.ByOutcome[Pass])}
	for _, o := range []Outcome{Fail, Malformed, Infrastructure, Error} {
		if n := s.ByOutcome[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(o.String())))
		}
	}
	return fmt.Sprintf("%s: %s in %s",
		english.Plural(s.Total, "scenario", ""),
		strings.Join(parts, ", "),
		s.Elapsed.Round(time.Millisecond))
}

// ReportOptions controls WriteReport.
type ReportOptions struct {
	// Colors enables ANSI colours.
	Colors bool
	// Dump prints expected and observed values of violations in full.
	Dump bool
}

// WriteReport prints one block per result followed by the summary.
func WriteReport(w io.Writer, results []Result, opts ReportOptions) error {
	au := aurora.New(aurora.WithColors(opts.Colors))
	dump := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

	width := 0
	for _, r := range results {
		width = max(width, len(r.Scenario))
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s  %-*s  %s\n", outcomeLabel(au, r.Outcome), width, r.Scenario, r.Elapsed.Round(time.Millisecond))
		if r.Err == nil {
			continue
		}
		if v := r.Violation(); v != nil {
			fmt.Fprintf(&b, "           %s: %s\n", au.Bold(v.Check), v.Description)
			if opts.Dump {
				fmt.Fprintf(&b, "             expected: %s", dump.Sdump(v.Expected))
				fmt.Fprintf(&b, "             observed: %s", dump.Sdump(v.Observed))
			} else {
				fmt.Fprintf(&b, "             expected: %v\n", v.Expected)
				fmt.Fprintf(&b, "             observed: %v\n", v.Observed)
			}
		} else {
			fmt.Fprintf(&b, "           %s\n", r.Err)
		}
		if len(r.Trail) > 0 {
			fmt.Fprintf(&b, "             phases: %s\n", r.Trail)
		}
	}

	sum := Summarize(results)
	line := sum.String()
	if sum.OK() {
		fmt.Fprintf(&b, "\n%s\n", au.Green(line))
	} else {
		fmt.Fprintf(&b, "\n%s\n", au.Red(line))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func outcomeLabel(au *aurora.Aurora, o Outcome) aurora.Value {
	label := fmt.Sprintf("%-9s", o)
	switch o {
	case Pass:
		return au.Green(label)
	case Fail:
		return au.Bold(au.Red(label))
	case Malformed:
		return au.Magenta(label)
	case Infrastructure:
		return au.Yellow(label)
	}
	return au.Red(label)
}

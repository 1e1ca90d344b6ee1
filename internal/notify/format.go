package notify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// maxListed caps how many fixes a single message enumerates.
const maxListed = 10

// FormatLocation renders "path:from-to", or just the range without a path.
// Example: "src/App.java:3-4"
func FormatLocation(r FixResult) string {
	lines := fmt.Sprintf("%d", r.FromLine)
	if r.ToLine != r.FromLine {
		lines = fmt.Sprintf("%d-%d", r.FromLine, r.ToLine)
	}
	if r.Component == "" {
		return "lines " + lines
	}
	return r.Component + ":" + lines
}

// FormatAccepted lists accepted fixes one per line.
// Example: "- `S2111` src/App.java:3-4 (92%)"
func FormatAccepted(results []FixResult) string {
	if len(results) == 0 {
		return "None"
	}
	var b strings.Builder
	for i, r := range results {
		if i == maxListed {
			fmt.Fprintf(&b, "\n…and %d more", len(results)-maxListed)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		pct := int(math.Round(r.Record.Confidence * 100))
		fmt.Fprintf(&b, "- `%s` %s (%d%%)", r.RuleID, FormatLocation(r), pct)
	}
	return b.String()
}

// FormatFailed lists failed runs one per line with their error kind.
// Example: "- `S1481` src/App.java:7 retry_exhausted"
func FormatFailed(results []FixResult) string {
	if len(results) == 0 {
		return "None"
	}
	var b strings.Builder
	for i, r := range results {
		if i == maxListed {
			fmt.Fprintf(&b, "\n…and %d more", len(results)-maxListed)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- `%s` %s %s", r.RuleID, FormatLocation(r), r.ErrorKind)
	}
	return b.String()
}

// FormatCounts renders outcome counts with "done" first, then the rest
// alphabetically. Example: "done: 4, retry_exhausted: 1"
func FormatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		if k != "done" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := counts["done"]; ok {
		keys = append([]string{"done"}, keys...)
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// headline is the one-line summary shared by every notifier.
func headline(s Summary) string {
	return fmt.Sprintf("%d of %d issues fixed (%d skipped) in %s",
		len(s.Accepted()), len(s.Results), s.Skipped, FormatDuration(s.Duration))
}

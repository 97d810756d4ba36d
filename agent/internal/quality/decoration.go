package quality

import (
	"fmt"
	"strings"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/pkg/types"
)

// Colours used for the verdict label.
const (
	ColorGood   = "green"
	ColorMedium = "orange"
	ColorBad    = "red"
)

// Decoration is the presentation payload for a verdict: a colour and the
// text lines of the label drawn over a plot.
type Decoration struct {
	Color string
	Lines []string
}

// Decorate returns the label for q.
func Decorate(q types.Quality) Decoration {
	switch q {
	case types.Good:
		return Decoration{Color: ColorGood, Lines: []string{"Quality::Good", "Everything OK"}}
	case types.Medium:
		return Decoration{Color: ColorMedium, Lines: []string{"Quality::Medium", "Inform expert on duty"}}
	default:
		return Decoration{Color: ColorBad, Lines: []string{"Quality::Bad", "Call expert on duty"}}
	}
}

// DecorateMetric labels a single metric result, appending its statistic or
// the reason it could not be evaluated.
func DecorateMetric(m MetricResult) Decoration {
	d := Decorate(m.Quality)
	if m.Err != nil {
		d.Lines = append(d.Lines, "unavailable: "+m.Err.Error())
		return d
	}
	d.Lines = append(d.Lines, fmt.Sprintf("%s = %.4g", statLabel(m), m.Statistic))
	return d
}

// DecorateReport labels the overall verdict and lists the failing metrics.
func DecorateReport(r *Report) Decoration {
	d := Decorate(r.Overall)
	if failed := r.Failed(); len(failed) > 0 {
		d.Lines = append(d.Lines, "failing: "+strings.Join(failed, ", "))
	}
	return d
}

func statLabel(m MetricResult) string {
	switch m.Kind {
	case check.KindMeanInRange:
		return "mean"
	case check.KindMinEntries:
		return "entries"
	default:
		return "empty fraction"
	}
}

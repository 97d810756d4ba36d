package compute

import "github.com/obsidianstack/detqc/pkg/types"

// historyWindow is the number of recent cycle verdicts kept.
const historyWindow = 20

// History is a fixed-size window of overall verdicts, newest last.
type History struct {
	verdicts []types.Quality
}

func (h *History) record(q types.Quality) {
	if len(h.verdicts) >= historyWindow {
		h.verdicts = h.verdicts[1:]
	}
	h.verdicts = append(h.verdicts, q)
}

// Len returns the number of verdicts held.
func (h *History) Len() int { return len(h.verdicts) }

// Count returns how many held verdicts equal q.
func (h *History) Count(q types.Quality) int {
	n := 0
	for _, v := range h.verdicts {
		if v == q {
			n++
		}
	}
	return n
}

// GoodPct is the percentage of held verdicts that were Good.
// It returns 100 before the first cycle.
func (h *History) GoodPct() float64 {
	if len(h.verdicts) == 0 {
		return 100
	}
	return float64(h.Count(types.Good)) / float64(len(h.verdicts)) * 100
}

// Worst folds the window with the worst-of policy; Good when empty.
func (h *History) Worst() types.Quality {
	w := types.Good
	for _, v := range h.verdicts {
		w = types.Worst(w, v)
	}
	return w
}

// Verdicts returns a copy of the window, oldest first.
func (h *History) Verdicts() []types.Quality {
	return append([]types.Quality(nil), h.verdicts...)
}

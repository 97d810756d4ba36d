package quality

import "github.com/obsidianstack/detqc/pkg/types"

// Aggregate returns the worst verdict in results, or Good when results is empty.
func Aggregate(results ...types.Quality) types.Quality {
	out := types.Good
	for _, q := range results {
		out = types.Worst(out, q)
		if out == types.Bad {
			// Nothing can raise a Bad verdict.
			return out
		}
	}
	return out
}

package plan

import "fmt"

// CascadeSkip computes the full skip closure for a plan: starting from the
// seed set of skipped step IDs (mapped to their reasons), every step that
// depends on a skipped step is skipped too, transitively and across batch
// boundaries. The returned map includes the seed entries; derived entries
// name the first skipped dependency as their reason.
//
// The result is a fixed point: running CascadeSkip on its own output adds
// nothing.
func CascadeSkip(p *ExecutionPlan, seed map[string]string) map[string]string {
	out := make(map[string]string, len(seed))
	for id, reason := range seed {
		out[id] = reason
	}
	if p == nil {
		return out
	}

	// Dependencies reference earlier steps, so one in-order pass normally
	// reaches the fixed point. Loop anyway in case the plan was never
	// validated; each pass adds at least one entry or stops.
	for i := 0; i <= p.TotalSteps(); i++ {
		changed := false
		for _, b := range p.Batches {
			for _, s := range b.Steps {
				if _, done := out[s.ID]; done {
					continue
				}
				for _, dep := range s.DependsOn {
					if _, skipped := out[dep]; skipped {
						out[s.ID] = fmt.Sprintf("dependency %s skipped", dep)
						changed = true
						break
					}
				}
			}
		}
		if !changed {
			break
		}
	}
	return out
}

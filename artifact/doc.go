// Package artifact stores the durable outputs of workflow runs on
// disk: execution plans, step logs, batch diffs, and review results.
//
// Every workflow gets its own directory under <base>/runs/<workflow-id>/
// so a run can be inspected (or deleted) as a unit. Large step logs are
// gzip-compressed transparently. Sweep applies the retention policy:
// idle runs are archived as tarballs first and deleted for good later.
//
// Example usage:
//
//	store := artifact.NewStore(".conductor",
//	    artifact.WithRetention(30*24*time.Hour),
//	)
//	err := store.SavePlan(wfID, plan)
//	out, err := store.StepOutput(wfID, "s1")
package artifact

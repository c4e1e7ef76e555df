package merge

// Decision is the per-file verdict of a reconcile run. Decisions are
// computed fresh from on-disk state each run and never cached; idempotence
// comes from recomputation, not persisted history.
type Decision string

const (
	// DecisionCopied means the bundle file was written to the target.
	DecisionCopied Decision = "copied"
	// DecisionSkipped means the target was left untouched. Declining an
	// overwrite prompt is a successful skip, not a failure.
	DecisionSkipped Decision = "skipped"
	// DecisionOverwritten means an existing target file was replaced after
	// the user confirmed (or confirmation was assumed).
	DecisionOverwritten Decision = "overwritten"
	// DecisionMerged means a structural patcher changed the target file.
	DecisionMerged Decision = "merged"
	// DecisionFailed means this file's reconciliation failed; the run
	// continues with the remaining files.
	DecisionFailed Decision = "failed"
)

// FileResult records what happened to one bundle entry.
type FileResult struct {
	Path     string
	Decision Decision
	Note     string
	Err      error
}

// Report accumulates per-file results for a reconcile run. One bad file
// must not block the rest, so errors land here instead of aborting.
type Report struct {
	Results []FileResult
}

func (r *Report) add(result FileResult) {
	r.Results = append(r.Results, result)
}

// Counts returns the number of applied (copied/overwritten/merged), skipped,
// and failed files.
func (r *Report) Counts() (applied, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Decision {
		case DecisionCopied, DecisionOverwritten, DecisionMerged:
			applied++
		case DecisionSkipped:
			skipped++
		case DecisionFailed:
			failed++
		}
	}
	return applied, skipped, failed
}

// Failures returns the results that failed.
func (r *Report) Failures() []FileResult {
	var failures []FileResult
	for _, res := range r.Results {
		if res.Decision == DecisionFailed {
			failures = append(failures, res)
		}
	}
	return failures
}

// HasFailures reports whether any file failed to reconcile.
func (r *Report) HasFailures() bool {
	for _, res := range r.Results {
		if res.Decision == DecisionFailed {
			return true
		}
	}
	return false
}

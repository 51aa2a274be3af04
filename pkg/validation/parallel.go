package validation

import (
	"context"
	"strings"
	"sync"
)

// RunParallel invokes both validation paths for one request and compares them.
// The two calls share no mutable state, so they run as plain goroutines joined
// before comparison; the comparator never sees a partial pair. With sequential
// set, the enhanced path runs after the legacy one (for environments where the
// pool is too small for doubled concurrency).
func RunParallel(ctx context.Context, current, enhanced Validator, req Request, sequential bool) Outcome {
	var cur, enh Result
	if sequential {
		cur = current.Validate(ctx, req)
		enh = enhanced.Validate(ctx, req)
		return Compare(cur, enh)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cur = current.Validate(ctx, req)
	}()
	go func() {
		defer wg.Done()
		enh = enhanced.Validate(ctx, req)
	}()
	wg.Wait()
	return Compare(cur, enh)
}

// Compare derives the parallel outcome. ResultsMatch is false whenever the
// success verdicts differ, or both succeeded but resolved different tenants.
// A mismatch is a security-relevant signal for the caller to record; it is
// never resolved here by picking a side.
func Compare(current, enhanced Result) Outcome {
	match := current.Success == enhanced.Success
	if match && current.Success {
		match = current.Context != nil && enhanced.Context != nil &&
			strings.EqualFold(current.Context.TenantID, enhanced.Context.TenantID)
	}
	return Outcome{
		Current:                  current,
		Enhanced:                 enhanced,
		PerformanceImprovementMS: current.DurationMS - enhanced.DurationMS,
		ResultsMatch:             match,
	}
}

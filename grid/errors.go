package grid

import "errors"

// Failure taxonomy. Input-validation and topological errors abort a run before
// any solving cost is incurred; solve-time errors are surfaced unchanged.
var (
	// ErrInvalidClusterCount reports a requested cluster count outside [1, |buses|].
	ErrInvalidClusterCount = errors.New("invalid cluster count")

	// ErrDisconnectedNetwork reports a graph whose connected components cannot
	// satisfy the requested clustering.
	ErrDisconnectedNetwork = errors.New("disconnected network")

	// ErrUnresolvedAggregationStrategy reports an aggregated attribute with no
	// declared combination strategy.
	ErrUnresolvedAggregationStrategy = errors.New("unresolved aggregation strategy")

	// ErrInfeasibleProblem reports a linear program with no feasible dispatch
	// and no load-shedding fallback. Fatal, never retried.
	ErrInfeasibleProblem = errors.New("infeasible problem")

	// ErrSolverUnavailable reports that the external linear-programming
	// capability cannot be reached or is unknown. Fatal.
	ErrSolverUnavailable = errors.New("solver unavailable")
)

package sss

// InvalidParametersError reports a caller error in split/combine/refresh
// parameters (threshold < 2, shares < threshold, mismatched share length).
// These are never retried by callers.
type InvalidParametersError struct {
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return "invalid parameters: " + e.Reason
}

package shard

import "fmt"

// RoutingError reports that no shard could be resolved for a request.
// Routing failures are deterministic and are never retried.
type RoutingError struct {
	Cluster string
	Table   string
	Reason  string
	Err     error
}

func (e *RoutingError) Error() string {
	msg := "routing error"
	if e.Cluster != "" {
		msg += fmt.Sprintf(" cluster=%s", e.Cluster)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" table=%s", e.Table)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RoutingError) Unwrap() error { return e.Err }

func routingErr(cluster, table, format string, args ...any) *RoutingError {
	return &RoutingError{Cluster: cluster, Table: table, Reason: fmt.Sprintf(format, args...)}
}

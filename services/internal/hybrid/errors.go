package hybrid

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

// Kind classifies a fatal run error.
type Kind int

const (
	KindConnectivity Kind = iota + 1
	KindQuery
	KindExport
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrConnectivity = errors.New("connectivity failure")
	ErrQuery        = errors.New("query failure")
	ErrExport       = errors.New("export failure")
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindQuery:
		return "query"
	case KindExport:
		return "export"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnectivity:
		return ErrConnectivity
	case KindQuery:
		return ErrQuery
	case KindExport:
		return ErrExport
	}
	return nil
}

// Error carries the failing store, step and filters so the caller can retry
// with the same inputs.
type Error struct {
	Kind    Kind
	Store   string
	Step    string
	Filters map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failure: %s", e.Kind, e.Step)
	if e.Store != "" {
		msg += " on " + e.Store
	}
	if len(e.Filters) > 0 {
		msg += fmt.Sprintf(" (filters %v)", e.Filters)
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// classify tells a lost or unreachable store apart from a rejected query.
func classify(err error) Kind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return KindQuery
	}
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) && !mongo.IsNetworkError(err) {
		return KindQuery
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected):
		return KindConnectivity
	}
	return KindQuery
}

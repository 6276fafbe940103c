package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

var ErrInvalidTransition = errors.New("invalid order status transition")

// allowedTransitions is the fixed transition graph. Orders only advance
// forward; cancellation is reachable until the order ships.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// AllowedNext returns the set of statuses reachable from s, sorted for
// stable error messages.
func AllowedNext(s Status) []Status {
	next := make([]Status, 0, len(allowedTransitions[s]))
	for status := range allowedTransitions[s] {
		next = append(next, status)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// ValidateTransition checks current→next against the transition graph.
// The caller must pass the current persisted status, read fresh, not a
// client-supplied value.
func ValidateTransition(current, next Status) error {
	transitions, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}
	if !transitions[next] {
		allowed := AllowedNext(current)
		if len(allowed) == 0 {
			return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current)
		}
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		return fmt.Errorf("%w: cannot move from %s to %s (allowed: %s)",
			ErrInvalidTransition, current, next, strings.Join(names, ", "))
	}
	return nil
}

// IsCancellable reports whether stock should be released when the order
// leaves s for cancelled.
func IsCancellable(s Status) bool {
	return allowedTransitions[s][StatusCancelled]
}

package domain

import (
	"context"
	"errors"

	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
)

// ActionResult is the outcome of one action after its retry budget.
type ActionResult struct {
	Action   entitlementdomain.Action
	Attempts int
	Err      error
}

func (r ActionResult) Failed() bool { return r.Err != nil }

// Report lists every dispatched action in input order.
type Report struct {
	Results []ActionResult
}

func (r Report) Failures() []ActionResult {
	var failed []ActionResult
	for _, result := range r.Results {
		if result.Failed() {
			failed = append(failed, result)
		}
	}
	return failed
}

func (r Report) OK() bool { return len(r.Failures()) == 0 }

// Dispatcher applies entitlement actions to their collaborators. A failed
// action never prevents the remaining actions from running.
type Dispatcher interface {
	Dispatch(ctx context.Context, actions []entitlementdomain.Action) Report
}

var ErrUnknownAction = errors.New("unknown_action_type")

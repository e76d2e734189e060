package access

import (
	"context"

	id "gatepass/pkg/domain"
)

// Gate answers whether a requester may start a conversation. An error is
// treated as a denial by callers.
type Gate interface {
	Allowed(ctx context.Context, requester id.RequesterID) (bool, error)
}

// Allowlist admits a fixed set of requesters.
type Allowlist struct {
	members map[id.RequesterID]struct{}
}

func NewAllowlist(members ...int64) *Allowlist {
	a := &Allowlist{members: make(map[id.RequesterID]struct{}, len(members))}
	for _, m := range members {
		a.members[id.RequesterID(m)] = struct{}{}
	}
	return a
}

func (a *Allowlist) Allowed(_ context.Context, requester id.RequesterID) (bool, error) {
	_, ok := a.members[requester]
	return ok, nil
}

// AllowAll admits everyone. For development only.
type AllowAll struct{}

func (AllowAll) Allowed(context.Context, id.RequesterID) (bool, error) {
	return true, nil
}

// Func adapts a function to Gate, typically a membership check against the
// chat platform.
type Func func(ctx context.Context, requester id.RequesterID) (bool, error)

func (f Func) Allowed(ctx context.Context, requester id.RequesterID) (bool, error) {
	return f(ctx, requester)
}

// FromConfig picks the gate matching the intake settings.
func FromConfig(allowAll bool, members []int64) Gate {
	if allowAll {
		return AllowAll{}
	}
	return NewAllowlist(members...)
}

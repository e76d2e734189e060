package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	id "gatepass/pkg/domain"
)

func TestAllowlist(t *testing.T) {
	gate := NewAllowlist(10, 20)
	ctx := context.Background()

	ok, err := gate.Allowed(ctx, 10)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Allowed(ctx, 30)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	ok, _ := FromConfig(true, nil).Allowed(ctx, 99)
	assert.True(t, ok)

	ok, _ = FromConfig(false, nil).Allowed(ctx, 99)
	assert.False(t, ok, "empty allowlist admits nobody")
}

func TestFunc(t *testing.T) {
	boom := errors.New("membership lookup failed")
	gate := Func(func(context.Context, id.RequesterID) (bool, error) { return false, boom })

	_, err := gate.Allowed(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

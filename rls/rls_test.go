package rls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedKeys(t *testing.T) {
	require.NoError(t, Validate(Context{
		"tenant_id": "t-1",
		"org":       "acme",
		"_internal": "x",
	}))
}

func TestValidateRejectsMalformedKeys(t *testing.T) {
	cases := []string{
		"Tenant",
		"tenant-id",
		"tenant id",
		"1tenant",
		"tenant;drop",
		"",
	}
	for _, key := range cases {
		err := Validate(Context{key: "v"})
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestApplyEmptyContextIsNoop(t *testing.T) {
	// A nil querier never gets touched when there is nothing to set.
	require.NoError(t, Apply(t.Context(), nil, "app", nil))
	require.NoError(t, Apply(t.Context(), nil, "app", Context{}))
}

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mselser95/dex-router/pkg/types"
)

func TestSwapOutcomeErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		order   *types.Order
		wantErr string
	}{
		{
			name:  "settled-order-succeeds",
			order: &types.Order{ID: "ord-1", Status: types.StatusSettled},
		},
		{
			name:    "cancelled-order-reported",
			order:   &types.Order{ID: "ord-2", Status: types.StatusCancelled},
			wantErr: "cancelled",
		},
		{
			name: "failed-order-carries-code-and-detail",
			order: &types.Order{
				ID:        "ord-3",
				Status:    types.StatusFailed,
				ErrorCode: types.CodeNoLiquidity,
				Detail:    "no provider returned a quote",
			},
			wantErr: "no provider returned a quote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := swapOutcomeErr(tt.order)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

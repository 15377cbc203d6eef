package domain_test

import (
	"testing"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestTriggerStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from domain.TriggerStatus
		to   domain.TriggerStatus
		want bool
	}{
		{"unchecked to unseen", domain.StatusUnchecked, domain.StatusUnseen, true},
		{"unchecked to reversible", domain.StatusUnchecked, domain.StatusReversible, true},
		{"unchecked to irreversible", domain.StatusUnchecked, domain.StatusIrreversible, true},
		{"unseen to reversible", domain.StatusUnseen, domain.StatusReversible, true},
		{"unseen to irreversible", domain.StatusUnseen, domain.StatusIrreversible, true},
		{"unseen to unchecked", domain.StatusUnseen, domain.StatusUnchecked, false},
		{"reversible to irreversible", domain.StatusReversible, domain.StatusIrreversible, true},
		{"reversible to unseen", domain.StatusReversible, domain.StatusUnseen, true},
		{"reversible to unchecked", domain.StatusReversible, domain.StatusUnchecked, false},
		{"irreversible is terminal", domain.StatusIrreversible, domain.StatusReversible, false},
		{"irreversible to itself", domain.StatusIrreversible, domain.StatusIrreversible, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

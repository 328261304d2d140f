package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	cases := []struct {
		from    State
		event   string
		want    State
		wantErr error
	}{
		{StateDraft, eventSubmit, StatePending, nil},
		{StatePending, eventApprove, StatePending, nil},
		{StatePending, eventComplete, StateApproved, nil},
		{StatePending, eventReject, StateRejected, nil},
		{StatePending, eventCancel, StateCancelled, nil},
		{StatePending, eventSubmit, StatePending, ErrInvalidTransition},
		{StateDraft, eventApprove, StateDraft, ErrInvalidTransition},
		{StateRejected, eventApprove, StateRejected, ErrTerminal},
		{StateCancelled, eventRefresh, StateCancelled, ErrTerminal},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+tc.event, func(t *testing.T) {
			got, err := fire(tc.from, tc.event)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, allow(tc.from, tc.event), tc.wantErr)
			} else {
				require.NoError(t, err)
				require.NoError(t, allow(tc.from, tc.event))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

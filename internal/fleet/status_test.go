package fleet

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusStarting, StatusRunning, true},
		{StatusStarting, StatusFailed, true},
		{StatusStarting, StatusStopped, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusStopped, true},
		{StatusRunning, StatusStarting, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusStopped, false},
		{StatusStopped, StatusRunning, false},
		{StatusStopped, StatusFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusStarting.Terminal() || StatusRunning.Terminal() {
		t.Error("live statuses must not be terminal")
	}
	if !StatusFailed.Terminal() || !StatusStopped.Terminal() {
		t.Error("failed and stopped must be terminal")
	}
}

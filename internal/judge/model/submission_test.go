package model

import "testing"

func TestIsTerminal(t *testing.T) {
	terminal := []string{
		StatusAccepted,
		StatusWrongAnswer,
		StatusRuntimeError,
		StatusTimeLimitExceeded,
		StatusCompileError,
	}
	for _, status := range terminal {
		if !IsTerminal(status) {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
	if IsTerminal(StatusPending) {
		t.Fatalf("expected Pending to be non-terminal")
	}
	if IsTerminal("") {
		t.Fatalf("expected empty status to be non-terminal")
	}
}

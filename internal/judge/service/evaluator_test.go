package service

import (
	"testing"

	"conqueroj/internal/judge/model"
	"conqueroj/internal/judge/sandbox/runner"
)

func completed(output string) runner.CaseRun {
	return runner.CaseRun{Outcome: runner.OutcomeCompleted, Output: output}
}

func TestAggregateAllAccepted(t *testing.T) {
	cases := []model.TestCase{
		{Input: "1 2", ExpectedOutput: "3"},
		{Input: "2 3", ExpectedOutput: "5"},
	}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{completed("3"), completed("5")}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted, got %s", v.Status)
	}
	if len(v.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(v.Results))
	}
	for i, r := range v.Results {
		if !r.Passed {
			t.Fatalf("expected case %d to pass", i)
		}
	}
}

func TestAggregateRunsAllCasesAfterFailure(t *testing.T) {
	cases := []model.TestCase{
		{ExpectedOutput: "1"},
		{ExpectedOutput: "2"},
		{ExpectedOutput: "3"},
	}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{
		completed("1"),
		completed("wrong"),
		completed("3"),
	}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusWrongAnswer {
		t.Fatalf("expected Wrong Answer, got %s", v.Status)
	}
	if len(v.Results) != 3 {
		t.Fatalf("expected all 3 cases recorded, got %d", len(v.Results))
	}
	if !v.Results[2].Passed {
		t.Fatalf("expected case after the failure to still run and pass")
	}
}

func TestAggregateVerdictPrecedence(t *testing.T) {
	cases := []model.TestCase{
		{ExpectedOutput: "1"},
		{ExpectedOutput: "2"},
		{ExpectedOutput: "3"},
	}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{
		completed("wrong"),
		{Outcome: runner.OutcomeTimeout},
		{Outcome: runner.OutcomeRuntimeError, Diagnostic: "segfault"},
	}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusRuntimeError {
		t.Fatalf("expected Runtime Error to win precedence, got %s", v.Status)
	}
	if v.Results[1].Verdict != model.StatusTimeLimitExceeded {
		t.Fatalf("expected case 1 to be TLE, got %s", v.Results[1].Verdict)
	}
}

func TestAggregateTimeoutBeatsWrongAnswer(t *testing.T) {
	cases := []model.TestCase{
		{ExpectedOutput: "1"},
		{ExpectedOutput: "2"},
	}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{
		completed("wrong"),
		{Outcome: runner.OutcomeTimeout},
	}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusTimeLimitExceeded {
		t.Fatalf("expected Time Limit Exceeded, got %s", v.Status)
	}
}

func TestAggregateCompileErrorHasNoResults(t *testing.T) {
	cases := []model.TestCase{{ExpectedOutput: "1"}, {ExpectedOutput: "2"}}
	run := &runner.SubmissionRun{CompileFailed: true, CompileOutput: "main.c:1: error"}

	v := Aggregate(cases, run)
	if v.Status != model.StatusCompileError {
		t.Fatalf("expected Compile Error, got %s", v.Status)
	}
	if len(v.Results) != 0 {
		t.Fatalf("expected no per-case results, got %d", len(v.Results))
	}
	if v.ErrorOutput != "main.c:1: error" {
		t.Fatalf("expected compiler diagnostic carried in the verdict, got %q", v.ErrorOutput)
	}
}

func TestAggregateMarksHiddenCases(t *testing.T) {
	cases := []model.TestCase{
		{ExpectedOutput: "1"},
		{ExpectedOutput: "2", IsHidden: true},
	}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{completed("1"), completed("2")}}

	v := Aggregate(cases, run)
	if v.Results[0].Hidden {
		t.Fatalf("expected visible case not marked hidden")
	}
	if !v.Results[1].Hidden {
		t.Fatalf("expected hidden flag carried onto the result")
	}
}

func TestAggregateZeroCasesAccepted(t *testing.T) {
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{}}
	v := Aggregate(nil, run)
	if v.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted for zero cases, got %s", v.Status)
	}
	if v.Results == nil || len(v.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", v.Results)
	}
}

func TestAggregateTrimsWhitespace(t *testing.T) {
	cases := []model.TestCase{{ExpectedOutput: "hello world"}}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{completed("  hello world\n")}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusAccepted {
		t.Fatalf("expected trimmed comparison to accept, got %s", v.Status)
	}
}

func TestAggregateInteriorWhitespaceMatters(t *testing.T) {
	cases := []model.TestCase{{ExpectedOutput: "a b"}}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{completed("a  b")}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusWrongAnswer {
		t.Fatalf("expected interior whitespace mismatch to reject, got %s", v.Status)
	}
}

func TestAggregateMissingCaseRunIsRuntimeError(t *testing.T) {
	cases := []model.TestCase{{ExpectedOutput: "1"}, {ExpectedOutput: "2"}}
	run := &runner.SubmissionRun{Cases: []runner.CaseRun{completed("1")}}

	v := Aggregate(cases, run)
	if v.Status != model.StatusRuntimeError {
		t.Fatalf("expected Runtime Error for missing case run, got %s", v.Status)
	}
	if len(v.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(v.Results))
	}
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		difficulty string
		want       int
	}{
		{"easy", 10},
		{"medium", 20},
		{"hard", 50},
		{"Hard", 50},
		{"unknown", 10},
		{"", 10},
	}
	for _, tt := range tests {
		if got := PointsFor(tt.difficulty); got != tt.want {
			t.Fatalf("PointsFor(%q) = %d, want %d", tt.difficulty, got, tt.want)
		}
	}
}

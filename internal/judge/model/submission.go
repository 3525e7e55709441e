package model

import "time"

// Submission statuses. A submission leaves Pending exactly once: whatever
// verdict the evaluation produces is written together with the per-case
// results, so readers never observe a half-updated record.
const (
	StatusPending           = "Pending"
	StatusAccepted          = "Accepted"
	StatusWrongAnswer       = "Wrong Answer"
	StatusRuntimeError      = "Runtime Error"
	StatusTimeLimitExceeded = "Time Limit Exceeded"
	StatusCompileError      = "Compile Error"
)

// IsTerminal reports whether a status is a final verdict. Redeliveries of a
// submission already in a terminal status are acknowledged without re-running.
func IsTerminal(status string) bool {
	switch status {
	case StatusAccepted, StatusWrongAnswer, StatusRuntimeError,
		StatusTimeLimitExceeded, StatusCompileError:
		return true
	}
	return false
}

// Submission is the persisted record of one code submission. ErrorOutput
// carries the compiler diagnostic or pipeline error text for failed verdicts
// and is empty otherwise.
type Submission struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProblemID   string    `json:"problem_id"`
	Language    string    `json:"language"`
	SourceKey   string    `json:"source_key"`
	Status      string    `json:"status"`
	ErrorOutput string    `json:"error_output,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TestCase is one input/expected-output pair attached to a problem. Hidden
// cases still count toward the verdict but their data is redacted from
// polling clients.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsHidden       bool   `json:"is_hidden"`
}

// TestCaseResult records the outcome of running one test case.
type TestCaseResult struct {
	CaseIndex int    `json:"case_index"`
	Passed    bool   `json:"passed"`
	Verdict   string `json:"verdict"`
	Output    string `json:"output"`
	Expected  string `json:"expected"`
	Hidden    bool   `json:"hidden"`
}

// Verdict is the final outcome of one evaluation: the overall status, error
// text for compile and pipeline failures, and every per-case result.
type Verdict struct {
	Status      string           `json:"status"`
	ErrorOutput string           `json:"error_output,omitempty"`
	Results     []TestCaseResult `json:"results"`
}

// Problem is the judge-side view of a problem: difficulty drives scoring,
// the test cases drive evaluation.
type Problem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty string     `json:"difficulty"`
	TestCases  []TestCase `json:"test_cases"`
}

// JudgeTask is the joined record the worker evaluates: the submission, its
// source code, and the problem it targets.
type JudgeTask struct {
	Submission Submission
	SourceCode string
	Problem    Problem
}

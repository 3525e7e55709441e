package service

import (
	"strings"

	"conqueroj/internal/judge/model"
	"conqueroj/internal/judge/sandbox/runner"
)

// verdict precedence, worst first. When multiple cases fail differently the
// submission status is the worst verdict observed across all cases.
var statusSeverity = map[string]int{
	model.StatusCompileError:      4,
	model.StatusRuntimeError:      3,
	model.StatusTimeLimitExceeded: 2,
	model.StatusWrongAnswer:       1,
	model.StatusAccepted:          0,
}

func worseStatus(a, b string) string {
	if statusSeverity[b] > statusSeverity[a] {
		return b
	}
	return a
}

// Aggregate turns raw sandbox output into a verdict. Every test case always
// contributes a result: a failure on case 3 of 10 still runs and records
// cases 4 through 10. A compile failure produces no per-case results; the
// compiler diagnostic travels in ErrorOutput so the user can see it.
func Aggregate(cases []model.TestCase, run *runner.SubmissionRun) model.Verdict {
	if run.CompileFailed {
		return model.Verdict{Status: model.StatusCompileError, ErrorOutput: run.CompileOutput}
	}

	// A problem without test cases has nothing to contradict the submission.
	if len(cases) == 0 {
		return model.Verdict{Status: model.StatusAccepted, Results: []model.TestCaseResult{}}
	}

	status := model.StatusAccepted
	results := make([]model.TestCaseResult, 0, len(cases))
	for i, tc := range cases {
		var cr runner.CaseRun
		if i < len(run.Cases) {
			cr = run.Cases[i]
		} else {
			cr = runner.CaseRun{Outcome: runner.OutcomeRuntimeError, Diagnostic: "no sandbox result"}
		}
		res := judgeCase(i, tc, cr)
		status = worseStatus(status, res.Verdict)
		results = append(results, res)
	}
	return model.Verdict{Status: status, Results: results}
}

// judgeCase compares one sandbox run against the expected output. Comparison
// trims surrounding whitespace on both sides and is otherwise exact.
func judgeCase(index int, tc model.TestCase, cr runner.CaseRun) model.TestCaseResult {
	res := model.TestCaseResult{
		CaseIndex: index,
		Expected:  tc.ExpectedOutput,
		Hidden:    tc.IsHidden,
	}
	switch cr.Outcome {
	case runner.OutcomeTimeout:
		res.Verdict = model.StatusTimeLimitExceeded
	case runner.OutcomeRuntimeError:
		res.Verdict = model.StatusRuntimeError
		res.Output = cr.Diagnostic
	default:
		res.Output = cr.Output
		if strings.TrimSpace(cr.Output) == strings.TrimSpace(tc.ExpectedOutput) {
			res.Verdict = model.StatusAccepted
			res.Passed = true
		} else {
			res.Verdict = model.StatusWrongAnswer
		}
	}
	return res
}

// PointsFor maps problem difficulty to the score awarded on first accept.
func PointsFor(difficulty string) int {
	switch strings.ToLower(difficulty) {
	case "medium":
		return 20
	case "hard":
		return 50
	default:
		return 10
	}
}

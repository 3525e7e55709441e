package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conqueroj/internal/common/db"
	"conqueroj/internal/judge/model"
	"conqueroj/pkg/errors"
)

// SubmissionRepository persists submissions, verdicts and scoring on a SQL
// backend. Statements are written with ? placeholders and rebound for
// PostgreSQL, so one repository serves both drivers.
type SubmissionRepository struct {
	database db.Database
	driver   string
}

func NewSubmissionRepository(database db.Database, driver string) *SubmissionRepository {
	return &SubmissionRepository{database: database, driver: driver}
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (r *SubmissionRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

const judgeTaskQuery = `
SELECT s.id, s.user_id, s.problem_id, s.language, s.source_key, s.status, COALESCE(s.error_output, ''), s.created_at, s.updated_at,
       p.title, p.difficulty
FROM submissions s
JOIN problems p ON p.id = s.problem_id
WHERE s.id = ?`

// GetJudgeTask loads a submission joined with its problem and test cases.
func (r *SubmissionRepository) GetJudgeTask(ctx context.Context, submissionID string) (*model.JudgeTask, error) {
	task := &model.JudgeTask{}
	row := r.database.QueryRow(ctx, r.rebind(judgeTaskQuery), submissionID)
	err := row.Scan(
		&task.Submission.ID,
		&task.Submission.UserID,
		&task.Submission.ProblemID,
		&task.Submission.Language,
		&task.Submission.SourceKey,
		&task.Submission.Status,
		&task.Submission.ErrorOutput,
		&task.Submission.CreatedAt,
		&task.Submission.UpdatedAt,
		&task.Problem.Title,
		&task.Problem.Difficulty,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, errors.Newf(errors.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return nil, errors.Wrapf(err, errors.DatabaseError, "load judge task %s", submissionID)
	}
	task.Problem.ID = task.Submission.ProblemID

	cases, err := r.listTestCases(ctx, task.Problem.ID)
	if err != nil {
		return nil, err
	}
	task.Problem.TestCases = cases
	return task, nil
}

func (r *SubmissionRepository) listTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	rows, err := r.database.Query(ctx,
		r.rebind(`SELECT input, expected_output, is_hidden FROM test_cases WHERE problem_id = ? ORDER BY case_index`),
		problemID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "list test cases for problem %s", problemID)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput, &tc.IsHidden); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "scan test case")
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "iterate test cases")
	}
	return cases, nil
}

// UpdateResult writes the verdict, its error text and every per-case result
// in one transaction so a poll can never observe a final status with stale
// results.
func (r *SubmissionRepository) UpdateResult(ctx context.Context, submissionID string, verdict model.Verdict) error {
	err := r.database.Transaction(ctx, func(tx db.Transaction) error {
		res, err := tx.Exec(ctx,
			r.rebind(`UPDATE submissions SET status = ?, error_output = ?, updated_at = ? WHERE id = ?`),
			verdict.Status, verdict.ErrorOutput, time.Now().UTC(), submissionID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.Newf(errors.SubmissionNotFound, "submission %s not found", submissionID)
		}

		if _, err := tx.Exec(ctx,
			r.rebind(`DELETE FROM submission_results WHERE submission_id = ?`),
			submissionID); err != nil {
			return err
		}
		for _, cr := range verdict.Results {
			if _, err := tx.Exec(ctx,
				r.rebind(`INSERT INTO submission_results (submission_id, case_index, passed, verdict, output, expected, hidden) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				submissionID, cr.CaseIndex, cr.Passed, cr.Verdict, cr.Output, cr.Expected, cr.Hidden); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.SubmissionNotFound) {
			return err
		}
		return errors.Wrapf(err, errors.TransactionFailed, "update result for %s", submissionID)
	}
	return nil
}

// RecordAcceptance inserts into the solved set and applies the score and
// solve-count increments only when the insert actually landed. The solved
// set's primary key makes the whole operation idempotent under redelivery.
func (r *SubmissionRepository) RecordAcceptance(ctx context.Context, userID, problemID string, points int) (bool, error) {
	insertSolved := `INSERT IGNORE INTO user_solved (user_id, problem_id) VALUES (?, ?)`
	if r.driver == "postgres" {
		insertSolved = `INSERT INTO user_solved (user_id, problem_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	}

	var first bool
	err := r.database.Transaction(ctx, func(tx db.Transaction) error {
		res, err := tx.Exec(ctx, r.rebind(insertSolved), userID, problemID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		first = true

		if _, err := tx.Exec(ctx,
			r.rebind(`UPDATE users SET score = score + ? WHERE id = ?`),
			points, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			r.rebind(`UPDATE problems SET solved_count = solved_count + 1 WHERE id = ?`),
			problemID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, errors.TransactionFailed, "record acceptance for user %s problem %s", userID, problemID)
	}
	return first, nil
}

// GetSubmissionWithResults loads a submission and its persisted results.
func (r *SubmissionRepository) GetSubmissionWithResults(ctx context.Context, submissionID string) (*model.Submission, []model.TestCaseResult, error) {
	sub := &model.Submission{}
	row := r.database.QueryRow(ctx,
		r.rebind(`SELECT id, user_id, problem_id, language, source_key, status, COALESCE(error_output, ''), created_at, updated_at FROM submissions WHERE id = ?`),
		submissionID)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.SourceKey, &sub.Status, &sub.ErrorOutput, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil, errors.Newf(errors.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return nil, nil, errors.Wrapf(err, errors.DatabaseError, "load submission %s", submissionID)
	}

	rows, err := r.database.Query(ctx,
		r.rebind(`SELECT case_index, passed, verdict, output, expected, hidden FROM submission_results WHERE submission_id = ? ORDER BY case_index`),
		submissionID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.DatabaseError, "list results for %s", submissionID)
	}
	defer rows.Close()

	results := []model.TestCaseResult{}
	for rows.Next() {
		var cr model.TestCaseResult
		if err := rows.Scan(&cr.CaseIndex, &cr.Passed, &cr.Verdict, &cr.Output, &cr.Expected, &cr.Hidden); err != nil {
			return nil, nil, errors.Wrapf(err, errors.DatabaseError, "scan result row")
		}
		results = append(results, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, errors.DatabaseError, "iterate result rows")
	}
	return sub, results, nil
}

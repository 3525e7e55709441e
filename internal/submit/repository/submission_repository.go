package repository

import (
	"context"
	"fmt"
	"strings"

	"conqueroj/internal/common/db"
	"conqueroj/internal/judge/model"
	"conqueroj/pkg/errors"
)

// SubmissionRepository handles the intake side of submission persistence.
type SubmissionRepository struct {
	database db.Database
	driver   string
}

func NewSubmissionRepository(database db.Database, driver string) *SubmissionRepository {
	return &SubmissionRepository{database: database, driver: driver}
}

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

// ProblemExists reports whether a problem row exists.
func (r *SubmissionRepository) ProblemExists(ctx context.Context, problemID string) (bool, error) {
	var one int
	row := r.database.QueryRow(ctx, r.rebind(`SELECT 1 FROM problems WHERE id = ?`), problemID)
	if err := row.Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.DatabaseError, "check problem %s", problemID)
	}
	return true, nil
}

// CreateSubmission inserts a new Pending submission row.
func (r *SubmissionRepository) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	_, err := r.database.Exec(ctx,
		r.rebind(`INSERT INTO submissions (id, user_id, problem_id, language, source_key, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.SourceKey, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if db.UniqueViolation(err) {
			return errors.Newf(errors.InvalidParams, "submission %s already exists", sub.ID)
		}
		return errors.Wrapf(err, errors.DatabaseError, "create submission %s", sub.ID)
	}
	return nil
}

// GetSubmission loads one submission row.
func (r *SubmissionRepository) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	sub := &model.Submission{}
	row := r.database.QueryRow(ctx,
		r.rebind(`SELECT id, user_id, problem_id, language, source_key, status, created_at, updated_at FROM submissions WHERE id = ?`),
		submissionID)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.SourceKey, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, errors.Newf(errors.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return nil, errors.Wrapf(err, errors.DatabaseError, "load submission %s", submissionID)
	}
	return sub, nil
}

package repository

import (
	"context"

	"algojudge/internal/common/db"
	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const (
	selectProblem = `SELECT id, time_limit_ms, memory_limit_mb,
		COALESCE(data_pack_key, '') AS data_pack_key, COALESCE(data_pack_hash, '') AS data_pack_hash
		FROM problems WHERE id = ?`

	selectSubmission = `SELECT id, user_id, problem_id, code, language, COALESCE(status, '') AS status, execution_time,
		memory_used, test_cases_passed, total_test_cases, COALESCE(error_message, '') AS error_message,
		submitted_at, COALESCE(source_key, '') AS source_key, COALESCE(source_hash, '') AS source_hash
		FROM submissions WHERE id = ?`

	selectTestCases = `SELECT id, problem_id, input_data, expected_output, is_sample, sort_order
		FROM test_cases WHERE problem_id = ? ORDER BY sort_order, id`

	updateSubmission = `UPDATE submissions SET status = ?, execution_time = ?, memory_used = ?,
		test_cases_passed = ?, total_test_cases = ?, error_message = ?, judge_state = ?
		WHERE id = ?`

	deleteResults = `DELETE FROM submission_results WHERE submission_id = ?`

	insertResult = `INSERT INTO submission_results
		(submission_id, test_case_id, status, execution_time, memory_used, actual_output, error_message)
		VALUES (:submission_id, :test_case_id, :status, :execution_time, :memory_used, :actual_output, :error_message)`

	updateJudgeState = `UPDATE submissions SET judge_state = ? WHERE id = ?`
)

// SQLRepository implements Repository on MySQL or PostgreSQL.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository wraps an open connection pool.
func NewSQLRepository(database *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: database}
}

// GetProblem loads the limits for a problem.
func (r *SQLRepository) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	var problem model.Problem
	if err := r.db.GetContext(ctx, &problem, r.db.Rebind(selectProblem), problemID); err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	return problem, nil
}

// GetSubmission loads a submission with its code.
func (r *SQLRepository) GetSubmission(ctx context.Context, submissionID string) (model.Submission, error) {
	var sub model.Submission
	if err := r.db.GetContext(ctx, &sub, r.db.Rebind(selectSubmission), submissionID); err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return model.Submission{}, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return sub, nil
}

// GetTestCases returns every case of the problem ordered by sort_order.
func (r *SQLRepository) GetTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	cases := []model.TestCase{}
	if err := r.db.SelectContext(ctx, &cases, r.db.Rebind(selectTestCases), problemID); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list test cases failed")
	}
	return cases, nil
}

// SaveSubmissionResult writes the outcome of a completed pass.
func (r *SQLRepository) SaveSubmissionResult(ctx context.Context, outcome model.SubmissionOutcome) error {
	if outcome.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	err := db.Transaction(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(updateSubmission),
			outcome.Status,
			outcome.ExecutionTime,
			outcome.MemoryUsed,
			outcome.TestCasesPassed,
			outcome.TotalTestCases,
			outcome.ErrorMessage,
			model.StateCompleted,
			outcome.SubmissionID,
		)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(deleteResults), outcome.SubmissionID); err != nil {
			return err
		}
		for _, result := range outcome.Results {
			result.SubmissionID = outcome.SubmissionID
			if _, err := tx.NamedExecContext(ctx, insertResult, result); err != nil {
				if key, ok := db.UniqueViolation(err); ok {
					return appErr.Wrapf(err, appErr.RecordAlreadyExists, "result already recorded (%s)", key)
				}
				return err
			}
		}
		return nil
	})
	if appErr.Is(err, appErr.RecordAlreadyExists) {
		return err
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.TransactionFailed, "save submission result failed")
	}
	return nil
}

// MarkJudgeState records the state column without touching the verdict.
func (r *SQLRepository) MarkJudgeState(ctx context.Context, submissionID string, state model.JudgeState) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(updateJudgeState), state, submissionID); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark judge state failed")
	}
	return nil
}

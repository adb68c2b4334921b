package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
	inTx bool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Interviews ---

const interviewColumns = `id, employer_id, job_posting_id, title, description, status, total_time_minutes, cutoff_at, created_at, updated_at`

func (s *PostgresStore) GetInterview(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	var iv models.Interview
	err := s.db.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id,
	).Scan(&iv.ID, &iv.EmployerID, &iv.JobPostingID, &iv.Title, &iv.Description, &iv.Status,
		&iv.TotalTimeMinutes, &iv.CutoffAt, &iv.CreatedAt, &iv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}
	return &iv, nil
}

// CreateInterview inserts an interview. Authoring is owned by another
// service; this exists for fixtures and local seeding.
func (s *PostgresStore) CreateInterview(ctx context.Context, iv *models.Interview) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO interviews (`+interviewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		iv.ID, iv.EmployerID, iv.JobPostingID, iv.Title, iv.Description, iv.Status,
		iv.TotalTimeMinutes, iv.CutoffAt, iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	return nil
}

// CreateQuestion inserts a question; see CreateInterview.
func (s *PostgresStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO questions (id, interview_id, text, time_limit_seconds, order_index, max_score)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.InterviewID, q.Text, q.TimeLimitSeconds, q.OrderIndex, q.MaxScore)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var q models.Question
	err := s.db.QueryRow(ctx,
		`SELECT id, interview_id, text, time_limit_seconds, order_index, max_score
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.InterviewID, &q.Text, &q.TimeLimitSeconds, &q.OrderIndex, &q.MaxScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &q, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, interviewID uuid.UUID) ([]*models.Question, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, interview_id, text, time_limit_seconds, order_index, max_score
		 FROM questions WHERE interview_id = $1 ORDER BY order_index, id`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.InterviewID, &q.Text, &q.TimeLimitSeconds, &q.OrderIndex, &q.MaxScore); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

// --- Assignments ---

const assignmentColumns = `id, interview_id, candidate_id, application_id, invitation_email, assigner_id,
	assigned_at, started_at, completed_at, deadline_at, status, manual_score, total_score, result,
	metadata, created_at, updated_at`

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.ID, &a.InterviewID, &a.CandidateID, &a.ApplicationID, &a.InvitationEmail, &a.AssignerID,
		&a.AssignedAt, &a.StartedAt, &a.CompletedAt, &a.DeadlineAt, &a.Status, &a.ManualScore, &a.TotalScore,
		&a.Result, &a.Metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment inserts the assignment together with its initial
// status event. A second assignment for the same (interview, candidate)
// returns ErrDuplicateKey.
func (s *PostgresStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		`WITH inserted AS (
		   INSERT INTO assignments (id, interview_id, candidate_id, application_id, invitation_email, assigner_id,
		     assigned_at, deadline_at, status, result, metadata, created_at, updated_at)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		   RETURNING id, assigner_id, status, assigned_at
		 )
		 INSERT INTO assignment_events (assignment_id, from_status, to_status, actor_id, reason, occurred_at)
		 SELECT id, NULL, status, assigner_id, 'created', assigned_at FROM inserted`,
		a.ID, a.InterviewID, a.CandidateID, a.ApplicationID, a.InvitationEmail, a.AssignerID,
		a.AssignedAt, a.DeadlineAt, a.Status, a.Result, metadata, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	if !s.inTx {
		return nil, fmt.Errorf("get assignment for update: not in a transaction")
	}
	a, err := scanAssignment(s.db.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]*models.Assignment, int, error) {
	conditions := []string{"interview_id = $1"}
	args := []any{filter.InterviewID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM assignments WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM assignments WHERE %s ORDER BY assigned_at DESC, id LIMIT $%d OFFSET $%d`,
		assignmentColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// TransitionAssignment moves an assignment from one status to another only if
// it is still in from. The status change and its event row are written by one
// statement. Entering in_progress stamps started_at; entering a terminal
// status other than timeout stamps completed_at.
func (s *PostgresStore) TransitionAssignment(ctx context.Context, id uuid.UUID, from, to models.AssignmentStatus, opts ...TransitionOption) (*models.Assignment, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("invalid assignment status transition: %s -> %s", from, to)
	}

	params := ResolveTransition(opts...)

	var startedAt, completedAt *time.Time
	switch to {
	case models.StatusInProgress:
		startedAt = &params.At
	case models.StatusSubmitted:
		completedAt = &params.At
	}

	a, err := scanAssignment(s.db.QueryRow(ctx,
		`WITH updated AS (
		   UPDATE assignments
		   SET status = $3,
		       started_at = COALESCE($4, started_at),
		       completed_at = COALESCE($5, completed_at),
		       updated_at = $6
		   WHERE id = $1 AND status = $2
		   RETURNING `+assignmentColumns+`
		 ), event AS (
		   INSERT INTO assignment_events (assignment_id, from_status, to_status, actor_id, reason, occurred_at)
		   SELECT id, $2, $3, $7::uuid, $8::text, $6 FROM updated
		 )
		 SELECT `+assignmentColumns+` FROM updated`,
		id, from, to, startedAt, completedAt, params.At, params.ActorID, params.Reason))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetAssignment(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, fmt.Errorf("transition assignment: %w", err)
	}
	return a, nil
}

// TimeoutOverdue converts up to limit open assignments whose deadline is
// before now to timeout. Rows locked by in-flight transactions are skipped
// and picked up on a later call.
func (s *PostgresStore) TimeoutOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Assignment, error) {
	rows, err := s.db.Query(ctx,
		`WITH overdue AS (
		   SELECT id, status AS prev_status FROM assignments
		   WHERE status IN ('assigned', 'in_progress') AND deadline_at < $1
		   ORDER BY deadline_at
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 ), updated AS (
		   UPDATE assignments a SET status = 'timeout', updated_at = $1
		   FROM overdue o WHERE a.id = o.id
		   RETURNING a.*, o.prev_status
		 ), events AS (
		   INSERT INTO assignment_events (assignment_id, from_status, to_status, reason, occurred_at)
		   SELECT id, prev_status, 'timeout', 'deadline sweep', $1 FROM updated
		 )
		 SELECT `+assignmentColumns+` FROM updated`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("timeout overdue assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAssignmentEvents(ctx context.Context, assignmentID uuid.UUID) ([]*models.AssignmentEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, assignment_id, from_status, to_status, actor_id, reason, occurred_at
		 FROM assignment_events WHERE assignment_id = $1 ORDER BY occurred_at, id`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list assignment events: %w", err)
	}
	defer rows.Close()

	var events []*models.AssignmentEvent
	for rows.Next() {
		var e models.AssignmentEvent
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.FromStatus, &e.ToStatus, &e.ActorID,
			&e.Reason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan assignment event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) UpdateAssignmentScores(ctx context.Context, id uuid.UUID, update ScoreUpdate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE assignments SET manual_score = $2, total_score = $3, result = $4, updated_at = NOW()
		 WHERE id = $1`, id, update.ManualScore, update.TotalScore, update.Result)
	if err != nil {
		return fmt.Errorf("update assignment scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Answers ---

const answerColumns = `id, assignment_id, question_id, text, elapsed_seconds, score, grader_id, graded_at, feedback, created_at, updated_at`

func scanAnswer(row pgx.Row) (*models.Answer, error) {
	var a models.Answer
	err := row.Scan(&a.ID, &a.AssignmentID, &a.QuestionID, &a.Text, &a.ElapsedSeconds, &a.Score,
		&a.GraderID, &a.GradedAt, &a.Feedback, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAnswer writes text and elapsed seconds for (assignment, question).
// Grading columns of an existing row are left untouched.
func (s *PostgresStore) UpsertAnswer(ctx context.Context, a *models.Answer) (*models.Answer, error) {
	out, err := scanAnswer(s.db.QueryRow(ctx,
		`INSERT INTO answers (id, assignment_id, question_id, text, elapsed_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (assignment_id, question_id) DO UPDATE SET
		   text = EXCLUDED.text,
		   elapsed_seconds = EXCLUDED.elapsed_seconds,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+answerColumns,
		a.ID, a.AssignmentID, a.QuestionID, a.Text, a.ElapsedSeconds, a.CreatedAt, a.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAnswer(ctx context.Context, id uuid.UUID) (*models.Answer, error) {
	a, err := scanAnswer(s.db.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

// ListAnswers returns the assignment's answers ordered by question order_index.
func (s *PostgresStore) ListAnswers(ctx context.Context, assignmentID uuid.UUID) ([]*models.Answer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT an.id, an.assignment_id, an.question_id, an.text, an.elapsed_seconds, an.score, an.grader_id,
		        an.graded_at, an.feedback, an.created_at, an.updated_at
		 FROM answers an JOIN questions q ON q.id = an.question_id
		 WHERE an.assignment_id = $1
		 ORDER BY q.order_index, q.id`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []*models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *PostgresStore) GradeAnswer(ctx context.Context, id uuid.UUID, grade Grade) (*models.Answer, error) {
	a, err := scanAnswer(s.db.QueryRow(ctx,
		`UPDATE answers SET score = $2, feedback = $3, grader_id = $4, graded_at = $5, updated_at = $5
		 WHERE id = $1
		 RETURNING `+answerColumns,
		id, grade.Score, grade.Feedback, grade.GraderID, grade.GradedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grade answer: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ManualAggregate(ctx context.Context, assignmentID uuid.UUID) (Aggregate, error) {
	var agg Aggregate
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(an.score), 0), COUNT(an.score),
		        (SELECT COALESCE(SUM(q.max_score), 0) FROM questions q WHERE q.interview_id = a.interview_id)
		 FROM assignments a LEFT JOIN answers an ON an.assignment_id = a.id
		 WHERE a.id = $1
		 GROUP BY a.id, a.interview_id`, assignmentID,
	).Scan(&agg.Sum, &agg.Graded, &agg.MaxPossible)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aggregate{}, ErrNotFound
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("manual aggregate: %w", err)
	}
	return agg, nil
}

// --- AI Evaluations ---

const evaluationColumns = `id, assignment_id, total_score, recommendation, criteria, summary, provider, model,
	question_feedback, degraded, created_at, updated_at`

func scanEvaluation(row pgx.Row) (*models.AiEvaluation, error) {
	var e models.AiEvaluation
	err := row.Scan(&e.ID, &e.AssignmentID, &e.TotalScore, &e.Recommendation, &e.Criteria, &e.Summary,
		&e.Provider, &e.Model, &e.QuestionFeedback, &e.Degraded, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) CreateAiEvaluation(ctx context.Context, e *models.AiEvaluation) (*models.AiEvaluation, bool, error) {
	out, err := scanEvaluation(s.db.QueryRow(ctx,
		`INSERT INTO ai_evaluations (`+evaluationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (assignment_id) DO NOTHING
		 RETURNING `+evaluationColumns,
		e.ID, e.AssignmentID, e.TotalScore, e.Recommendation, e.Criteria, e.Summary,
		e.Provider, e.Model, e.QuestionFeedback, e.Degraded, e.CreatedAt, e.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.GetAiEvaluation(ctx, e.AssignmentID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create ai evaluation: %w", err)
	}
	return out, true, nil
}

func (s *PostgresStore) GetAiEvaluation(ctx context.Context, assignmentID uuid.UUID) (*models.AiEvaluation, error) {
	e, err := scanEvaluation(s.db.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM ai_evaluations WHERE assignment_id = $1`, assignmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ai evaluation: %w", err)
	}
	return e, nil
}

// --- helpers ---

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/leeeeey/TaskCenter/src/model"
)

const batchColumns = `id, task_name, task_tag_name, task_batch_name, exec_status, dependence,
	start_time, end_time, plan_time, plan_expire_time, exec_time, exit_time, duration, retry`

// BatchStore owns all reads and writes of task_batch rows. The claim path
// runs inside a caller-held transaction so the dispatcher mutates and
// commits atomically; terminal updates are independent short transactions.
type BatchStore struct {
	db *DB
}

// NewBatchStore creates a batch store.
func NewBatchStore(db *DB) *BatchStore {
	return &BatchStore{db: db}
}

// selectOne wraps a single-row batch query with the driver's limit syntax.
func (s *BatchStore) selectOne(where, order string) string {
	if s.db.Driver() == "sqlserver" {
		return `SELECT TOP 1 ` + batchColumns + ` FROM task_batch ` + where + ` ` + order
	}
	return `SELECT ` + batchColumns + ` FROM task_batch ` + where + ` ` + order + ` LIMIT 1`
}

// InsertTx writes a new batch inside the generator's transaction. Fails on
// a duplicate task_tag_name via the unique index.
func (s *BatchStore) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Batch) error {
	query := s.db.Rebind(`INSERT INTO task_batch
		(task_name, task_tag_name, task_batch_name, exec_status, dependence,
		 start_time, end_time, plan_time, plan_expire_time, exec_time, exit_time, duration, retry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, query,
		b.TaskName, b.TaskTagName, b.TaskBatchName, int(b.ExecStatus), b.Dependence,
		b.StartTime, b.EndTime, b.PlanTime, b.PlanExpireTime, b.ExecTime, b.ExitTime,
		b.Duration, b.Retry)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.TaskBatchName, err)
	}
	return nil
}

// LastByTaskTx returns the most recently generated batch of a task (highest
// tag), or ErrNotFound. Used to find the generation frontier.
func (s *BatchStore) LastByTaskTx(ctx context.Context, tx *sql.Tx, taskName string) (*model.Batch, error) {
	query := s.db.Rebind(s.selectOne(`WHERE task_name = ?`, `ORDER BY task_tag_name DESC`))
	b, err := scanBatch(tx.QueryRowContext(ctx, query, taskName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last batch of %s: %w", taskName, ErrNotFound)
	}
	return b, err
}

// ClaimDueTx selects claimable candidates under the driver's row lock:
// status pending or awaiting retry, plan time arrived, task enabled for
// this environment, ordered by plan time. The caller walks, mutates, and
// commits in the same transaction.
func (s *BatchStore) ClaimDueTx(ctx context.Context, tx *sql.Tx, taskNames []string, now string) ([]*model.Batch, error) {
	if len(taskNames) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(taskNames)-1) + "?"
	query := s.db.Rebind(`SELECT ` + batchColumns + ` FROM task_batch` + s.db.RowLockHint() +
		` WHERE exec_status IN (0, 1) AND plan_time <= ? AND task_name IN (` + placeholders + `)
		ORDER BY plan_time` + s.db.RowLockSuffix())

	args := make([]interface{}, 0, len(taskNames)+1)
	args = append(args, now)
	for _, name := range taskNames {
		args = append(args, name)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim due batches: %w", err)
	}
	defer rows.Close()

	var batches []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due batches: %w", err)
	}
	return batches, nil
}

// LatestByTagTx returns the most recent batch carrying a tag, by batch name
// descending, inside the dispatch transaction. ErrNotFound if the window
// was never generated.
func (s *BatchStore) LatestByTagTx(ctx context.Context, tx *sql.Tx, tag string) (*model.Batch, error) {
	query := s.db.Rebind(s.selectOne(`WHERE task_tag_name = ?`, `ORDER BY task_batch_name DESC`))
	b, err := scanBatch(tx.QueryRowContext(ctx, query, tag))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch tag %s: %w", tag, ErrNotFound)
	}
	return b, err
}

// LatestByTag is LatestByTagTx outside a transaction.
func (s *BatchStore) LatestByTag(ctx context.Context, tag string) (*model.Batch, error) {
	query := s.selectOne(`WHERE task_tag_name = ?`, `ORDER BY task_batch_name DESC`)
	b, err := scanBatch(s.db.QueryRow(ctx, query, tag))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch tag %s: %w", tag, ErrNotFound)
	}
	return b, err
}

// Get returns a batch by id.
func (s *BatchStore) Get(ctx context.Context, id int64) (*model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM task_batch WHERE id = ?`
	b, err := scanBatch(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	return b, err
}

// MarkRunningTx claims a candidate inside the dispatch transaction.
func (s *BatchStore) MarkRunningTx(ctx context.Context, tx *sql.Tx, id int64, execTime string) error {
	query := s.db.Rebind(`UPDATE task_batch SET exec_status = ?, exec_time = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, query, int(model.StatusRunning), execTime, id); err != nil {
		return fmt.Errorf("mark batch %d running: %w", id, err)
	}
	return nil
}

// MarkFailedTx demotes a candidate whose start grace elapsed, inside the
// dispatch transaction.
func (s *BatchStore) MarkFailedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	query := s.db.Rebind(`UPDATE task_batch SET exec_status = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, query, int(model.StatusFailed), id); err != nil {
		return fmt.Errorf("mark batch %d failed: %w", id, err)
	}
	return nil
}

// UpdateRetry persists the attempt counter between retries. Independent
// short transaction.
func (s *BatchStore) UpdateRetry(ctx context.Context, id int64, retry int) error {
	query := `UPDATE task_batch SET retry = ? WHERE id = ?`
	if _, err := s.db.Exec(ctx, query, retry, id); err != nil {
		return fmt.Errorf("update batch %d retry: %w", id, err)
	}
	return nil
}

// Finish writes a terminal status with its duration and exit time.
func (s *BatchStore) Finish(ctx context.Context, id int64, status model.ExecStatus, duration int, exitTime string) error {
	query := `UPDATE task_batch SET exec_status = ?, duration = ?, exit_time = ? WHERE id = ?`
	if _, err := s.db.Exec(ctx, query, int(status), duration, exitTime, id); err != nil {
		return fmt.Errorf("finish batch %d: %w", id, err)
	}
	return nil
}

// ResetRecurring recycles a failed recurring batch back into the queue:
// awaiting retry, counters cleared, exec time back to the sentinel.
func (s *BatchStore) ResetRecurring(ctx context.Context, id int64, exitTime string) error {
	query := `UPDATE task_batch
		SET exec_status = ?, retry = 0, duration = 0, exec_time = ?, exit_time = ?
		WHERE id = ?`
	if _, err := s.db.Exec(ctx, query, int(model.StatusAwaitingRetry), model.SentinelTime, exitTime, id); err != nil {
		return fmt.Errorf("reset batch %d: %w", id, err)
	}
	return nil
}

// CountByStatus returns batch counts per status, for the status command.
func (s *BatchStore) CountByStatus(ctx context.Context) (map[model.ExecStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT exec_status, COUNT(*) FROM task_batch GROUP BY exec_status`)
	if err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ExecStatus]int)
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[model.ExecStatus(status)] = count
	}
	return counts, rows.Err()
}

// Empty reports whether task_batch has no rows, for first-run seeding.
func (s *BatchStore) Empty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM task_batch`).Scan(&count); err != nil {
		return false, fmt.Errorf("count batches: %w", err)
	}
	return count == 0, nil
}

func scanBatch(r rowScanner) (*model.Batch, error) {
	var (
		b          model.Batch
		status     int
		dependence sql.NullString
	)
	err := r.Scan(&b.ID, &b.TaskName, &b.TaskTagName, &b.TaskBatchName, &status, &dependence,
		&b.StartTime, &b.EndTime, &b.PlanTime, &b.PlanExpireTime, &b.ExecTime, &b.ExitTime,
		&b.Duration, &b.Retry)
	if err != nil {
		return nil, err
	}
	b.ExecStatus = model.ExecStatus(status)
	b.Dependence = dependence.String
	return &b, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leeeeey/TaskCenter/src/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const definitionColumns = `id, task_name, task_type, online, dependence, script, script_args,
	exec_unit, exec_unit_param, delay, start_expire, run_expire, retry_max_times,
	create_time, update_time`

// DefinitionStore reads task definitions. Definitions are written by
// operators, read-mostly here; each tick takes an immutable snapshot.
type DefinitionStore struct {
	db *DB
}

// NewDefinitionStore creates a definition store.
func NewDefinitionStore(db *DB) *DefinitionStore {
	return &DefinitionStore{db: db}
}

// ListByEnv returns definitions enabled for the environment, ordered by
// task name.
func (s *DefinitionStore) ListByEnv(ctx context.Context, env model.EnvType) ([]*model.TaskDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM task_info WHERE online = ? ORDER BY task_name`
	rows, err := s.db.Query(ctx, query, int(env))
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*model.TaskDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

// GetByName returns the definition with the given task name.
func (s *DefinitionStore) GetByName(ctx context.Context, taskName string) (*model.TaskDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM task_info WHERE task_name = ?`
	row := s.db.QueryRow(ctx, query, taskName)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("definition %s: %w", taskName, ErrNotFound)
	}
	return d, err
}

// Insert writes a new definition. Used by tests and bootstrap tooling;
// production definitions are written by operators.
func (s *DefinitionStore) Insert(ctx context.Context, d *model.TaskDefinition) error {
	query := `INSERT INTO task_info
		(task_name, task_type, online, dependence, script, script_args,
		 exec_unit, exec_unit_param, delay, start_expire, run_expire, retry_max_times,
		 create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(ctx, query,
		d.TaskName, int(d.TaskType), int(d.Online), d.Dependence, d.Script, d.ScriptArgs,
		string(d.ExecUnit), d.ExecUnitParam, d.Delay, d.StartExpire, d.RunExpire, d.RetryMaxTimes,
		d.CreateTime, d.UpdateTime)
	if err != nil {
		return fmt.Errorf("insert definition %s: %w", d.TaskName, err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(r rowScanner) (*model.TaskDefinition, error) {
	var (
		d          model.TaskDefinition
		taskType   int
		online     int
		execUnit   string
		dependence sql.NullString
		scriptArgs sql.NullString
		createTime sql.NullString
		updateTime sql.NullString
	)
	err := r.Scan(&d.ID, &d.TaskName, &taskType, &online, &dependence, &d.Script, &scriptArgs,
		&execUnit, &d.ExecUnitParam, &d.Delay, &d.StartExpire, &d.RunExpire, &d.RetryMaxTimes,
		&createTime, &updateTime)
	if err != nil {
		return nil, err
	}
	d.TaskType = model.TaskType(taskType)
	d.Online = model.EnvType(online)
	d.ExecUnit = model.ExecUnit(execUnit)
	d.Dependence = dependence.String
	d.ScriptArgs = scriptArgs.String
	d.CreateTime = createTime.String
	d.UpdateTime = updateTime.String
	return &d, nil
}

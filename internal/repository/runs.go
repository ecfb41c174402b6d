package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// insertBatch keeps multi-row inserts well under Postgres' parameter limit.
const insertBatch = 500

type RunRepository interface {
	Start(ctx context.Context, run entity.ExtractRun) error
	Finish(ctx context.Context, res entity.Result) error
	Fail(ctx context.Context, runID uuid.UUID, message string) error
	GetRun(ctx context.Context, runID uuid.UUID) (*entity.ExtractRun, error)
	ListRuns(ctx context.Context, limit int) ([]*entity.ExtractRun, error)
	ListRecords(ctx context.Context, runID string) ([]entity.Record, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

func (r *runRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.dialect)
}

// fixed width so text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Start records a RUNNING run.
func (r *runRepo) Start(ctx context.Context, run entity.ExtractRun) error {
	if run.Status == "" {
		run.Status = string(constants.RunStatusRunning)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	q, args := r.builder().Insert(tableRun).
		Columns("id", "strategy", "source", "status", "started_at").
		Values(run.ID.String(), run.Strategy, run.Source, run.Status, formatTime(run.StartedAt)).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("extract_run start failed", "run_id", run.ID, "err", err)
		return fmt.Errorf("%w: start run: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_run started", "run_id", run.ID, "strategy", run.Strategy, "source", run.Source)
	return nil
}

// Finish marks the run OK and stores its records in one transaction.
func (r *runRepo) Finish(ctx context.Context, res entity.Result) error {
	reasons, err := json.Marshal(res.Dropped)
	if err != nil {
		return fmt.Errorf("marshal dropped: %w", err)
	}
	dropped := 0
	for _, n := range res.Dropped {
		dropped += n
	}

	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	if err := r.finishTx(ctx, tx, res, dropped, string(reasons)); err != nil {
		_ = tx.Rollback()
		r.log.Error("extract_run finish(OK) failed", "run_id", res.RunID, "err", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_run finished (OK)", "run_id", res.RunID, "records", len(res.Records), "dropped", dropped)
	return nil
}

func (r *runRepo) finishTx(ctx context.Context, tx dialect.Tx, res entity.Result, dropped int, reasons string) error {
	var sqlRes sql.Result
	q, args := r.builder().Update(tableRun).
		Set("status", string(constants.RunStatusOK)).
		Set("documents", res.Documents).
		Set("records", len(res.Records)).
		Set("dropped", dropped).
		Set("dropped_reasons", reasons).
		Set("ambiguous", res.Ambiguous).
		Set("finished_at", formatTime(res.StartedAt.Add(res.Duration))).
		Where(entsql.EQ("id", res.RunID.String())).
		Query()
	if err := tx.Exec(ctx, q, args, &sqlRes); err != nil {
		return fmt.Errorf("%w: update run: %v", common.ErrDatabase, err)
	}
	if n, err := sqlRes.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", res.RunID, common.ErrNotFound)
	}

	cols := recordColumns()
	fields := constants.Columns()
	for start := 0; start < len(res.Records); start += insertBatch {
		end := min(start+insertBatch, len(res.Records))
		ins := r.builder().Insert(tableRecord).Columns(cols...)
		for i, rec := range res.Records[start:end] {
			vals := make([]any, 0, len(cols))
			vals = append(vals, res.RunID.String(), start+i)
			for _, f := range fields {
				if v, ok := rec.Get(f); ok {
					vals = append(vals, v)
				} else {
					vals = append(vals, nil)
				}
			}
			ins.Values(vals...)
		}
		q, args := ins.Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("%w: insert records: %v", common.ErrDatabase, err)
		}
	}
	return nil
}

// Fail marks the run FAILED with a message.
func (r *runRepo) Fail(ctx context.Context, runID uuid.UUID, message string) error {
	q, args := r.builder().Update(tableRun).
		Set("status", string(constants.RunStatusFailed)).
		Set("error_message", message).
		Set("finished_at", formatTime(time.Now())).
		Where(entsql.EQ("id", runID.String())).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("extract_run finish(FAILED) failed", "run_id", runID, "err", err)
		return fmt.Errorf("%w: fail run: %v", common.ErrDatabase, err)
	}
	r.log.Warn("extract_run finished (FAILED)", "run_id", runID, "error", message)
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, runID uuid.UUID) (*entity.ExtractRun, error) {
	q, args := r.builder().Select(runColumns...).
		From(entsql.Table(tableRun)).
		Where(entsql.EQ("id", runID.String())).
		Query()
	runs, err := r.queryRuns(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	return runs[0], nil
}

// ListRuns returns the most recent runs first.
func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]*entity.ExtractRun, error) {
	sel := r.builder().Select(runColumns...).
		From(entsql.Table(tableRun)).
		OrderBy(entsql.Desc("started_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()
	return r.queryRuns(ctx, q, args)
}

func (r *runRepo) queryRuns(ctx context.Context, q string, args []any) ([]*entity.ExtractRun, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query runs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ExtractRun
	for rows.Next() {
		var (
			id, started                   string
			reasons, finished, errMessage sql.NullString
			run                           entity.ExtractRun
		)
		if err := rows.Scan(&id, &run.Strategy, &run.Source, &run.Status, &run.Documents, &run.Records,
			&run.Dropped, &reasons, &run.Ambiguous, &started, &finished, &errMessage); err != nil {
			return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: bad run id %q: %v", common.ErrDatabase, id, err)
		}
		run.ID = parsed
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("%w: bad started_at %q: %v", common.ErrDatabase, started, err)
		}
		if finished.Valid {
			if t, err := time.Parse(timeLayout, finished.String); err == nil {
				run.FinishedAt = &t
			}
		}
		if errMessage.Valid {
			msg := errMessage.String
			run.ErrorMessage = &msg
		}
		if reasons.Valid && reasons.String != "" && reasons.String != "null" {
			if err := json.Unmarshal([]byte(reasons.String), &run.DroppedReasons); err != nil {
				r.log.Warn("bad dropped_reasons", "run_id", run.ID, "err", err)
			}
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// ListRecords returns a run's records in their original order.
func (r *runRepo) ListRecords(ctx context.Context, runID string) ([]entity.Record, error) {
	v := common.NewValidator().Field("run_id", runID, common.Required, common.UUID)
	if v.HasErrors() {
		return nil, common.NewAppError("INVALID_RUN_ID", v.ErrorMessage(), common.ErrInvalidInput)
	}

	fields := constants.Columns()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = string(f)
	}
	q, args := r.builder().Select(cols...).
		From(entsql.Table(tableRecord)).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("position").
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query records: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		vals := make([]sql.NullString, len(fields))
		ptrs := make([]any, len(fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", common.ErrDatabase, err)
		}
		rec := entity.Record{}
		for i, f := range fields {
			if vals[i].Valid {
				rec[f] = vals[i].String
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

package repository

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
)

const (
	tableRun    = "extract_run"
	tableRecord = "arrest_record"
)

var runColumns = []string{
	"id", "strategy", "source", "status", "documents", "records",
	"dropped", "dropped_reasons", "ambiguous", "started_at", "finished_at", "error_message",
}

// recordColumns are the record fields in column order after run_id and position.
func recordColumns() []string {
	return append([]string{"run_id", "position"}, constants.AsStringSlice()...)
}

// Migrate creates the tables when they do not exist yet. Timestamps are
// stored as fixed-width RFC 3339 text so both dialects read them back the same way.
func Migrate(ctx context.Context, d *DB) error {
	b := entsql.Dialect(d.dialect)

	runs := b.CreateTable(tableRun).IfNotExists().
		Columns(
			entsql.Column("id").Type("varchar(36)").Attr("NOT NULL"),
			entsql.Column("strategy").Type("varchar(16)").Attr("NOT NULL"),
			entsql.Column("source").Type("text").Attr("NOT NULL"),
			entsql.Column("status").Type("varchar(16)").Attr("NOT NULL"),
			entsql.Column("documents").Type("integer").Attr("NOT NULL DEFAULT 0"),
			entsql.Column("records").Type("integer").Attr("NOT NULL DEFAULT 0"),
			entsql.Column("dropped").Type("integer").Attr("NOT NULL DEFAULT 0"),
			entsql.Column("dropped_reasons").Type("text"),
			entsql.Column("ambiguous").Type("integer").Attr("NOT NULL DEFAULT 0"),
			entsql.Column("started_at").Type("varchar(40)").Attr("NOT NULL"),
			entsql.Column("finished_at").Type("varchar(40)"),
			entsql.Column("error_message").Type("text"),
		).
		PrimaryKey("id")

	cols := []*entsql.ColumnBuilder{
		entsql.Column("run_id").Type("varchar(36)").Attr("NOT NULL"),
		entsql.Column("position").Type("integer").Attr("NOT NULL"),
	}
	for _, f := range constants.Columns() {
		// NULL marks a field the strategy did not find
		cols = append(cols, entsql.Column(string(f)).Type("text"))
	}
	records := b.CreateTable(tableRecord).IfNotExists().
		Columns(cols...).
		PrimaryKey("run_id", "position")

	for _, tb := range []*entsql.TableBuilder{runs, records} {
		q, args := tb.Query()
		if err := d.Driver.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
		}
	}
	return nil
}

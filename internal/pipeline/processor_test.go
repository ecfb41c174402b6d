package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
	"github.com/joseph-ayodele/arrestlog/internal/export"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
	"github.com/joseph-ayodele/arrestlog/internal/source"
)

func block(caseNo, date, location string) string {
	return strings.Join([]string{
		"Case Number", caseNo,
		"Date Arrest", date,
		"Primary Location", location,
		"Sex: m",
		"Race: w",
		"PC 647(f) DRUNK IN PUBLIC",
	}, "\n") + "\n"
}

func fieldPage(caseNo, sex string) string {
	return "Case_Number\n" + caseNo + "\nSex: " + sex + "\n"
}

type recordingSink struct {
	name string
	got  []entity.Result
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, res entity.Result) error {
	s.got = append(s.got, res)
	return s.err
}

type fakeTracker struct {
	started  []entity.ExtractRun
	finished []entity.Result
	failed   []string
}

func (f *fakeTracker) Start(_ context.Context, run entity.ExtractRun) error {
	f.started = append(f.started, run)
	return nil
}

func (f *fakeTracker) Finish(_ context.Context, res entity.Result) error {
	f.finished = append(f.finished, res)
	return nil
}

func (f *fakeTracker) Fail(_ context.Context, _ uuid.UUID, msg string) error {
	f.failed = append(f.failed, msg)
	return nil
}

type failingSource struct{ err error }

func (f failingSource) Name() string { return "broken" }
func (f failingSource) List(context.Context) ([]entity.Document, error) {
	return nil, f.err
}

func newProcessor(t *testing.T, mutate func(*common.ExtractConfig), opts ...Option) *Processor {
	t.Helper()
	cfg := common.DefaultConfig().Extract
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewProcessor(cfg, nil, opts...)
	require.NoError(t, err)
	return p
}

func TestRun_BlocksInDocumentOrder(t *testing.T) {
	sink := &recordingSink{name: "mem"}
	tr := &fakeTracker{}
	p := newProcessor(t, nil, WithSinks(sink), WithTracker(tr))

	src := source.NewStatic("req", []entity.Document{
		{Name: "a", Text: block("17-1", "01/01/17 10:00", "12TH ST STATION") + block("17-2", "01/01/17 11:00", "ASHBY STATION")},
		{Name: "b", Text: "no records here\n"},
		{Name: "c", Text: block("17-3", "0 1/02/17 09:00", "ROCKRIDGE STATION")},
	})
	res, err := p.Run(context.Background(), src, "")
	require.NoError(t, err)

	assert.Equal(t, constants.StrategyBlocks, res.Strategy)
	assert.Equal(t, 3, res.Documents)
	require.Len(t, res.Records, 3)
	assert.Equal(t, []string{"17-1", "17-2", "17-3"}, []string{
		res.Records[0][constants.CaseNumber], res.Records[1][constants.CaseNumber], res.Records[2][constants.CaseNumber],
	})
	assert.Equal(t, "01/02/17 09:00", res.Records[2][constants.DateOfArrest])
	assert.Equal(t, "M", res.Records[0][constants.Sex])
	assert.NotEqual(t, uuid.Nil, res.RunID)

	require.Len(t, sink.got, 1)
	assert.Equal(t, res.RunID, sink.got[0].RunID)
	require.Len(t, tr.started, 1)
	assert.Equal(t, res.RunID, tr.started[0].ID)
	assert.Equal(t, "req", tr.started[0].Source)
	require.Len(t, tr.finished, 1)
	assert.Empty(t, tr.failed)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	var docs []entity.Document
	for i := 0; i < 40; i++ {
		id := "17-" + strings.Repeat("9", i%5) + string(rune('a'+i%26))
		docs = append(docs, entity.Document{Name: id, Text: block(id, "01/01/17 10:00", "STATION "+id)})
	}
	seq := newProcessor(t, func(c *common.ExtractConfig) { c.Workers = 1 })
	par := newProcessor(t, func(c *common.ExtractConfig) { c.Workers = 8 })

	a, err := seq.Run(context.Background(), source.NewStatic("s", docs), constants.StrategyBlocks)
	require.NoError(t, err)
	b, err := par.Run(context.Background(), source.NewStatic("s", docs), constants.StrategyBlocks)
	require.NoError(t, err)
	assert.Equal(t, a.Records, b.Records)
	assert.Equal(t, a.Streams, b.Streams)
}

func TestRun_FieldStreamAcrossDocuments(t *testing.T) {
	p := newProcessor(t, nil)
	src := source.NewStatic("s", []entity.Document{
		{Name: "2016", Text: fieldPage("A", "M")},
		{Name: "2017", Text: fieldPage("B", "F")},
	})
	res, err := p.Run(context.Background(), src, "fields")
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyFields, res.Strategy)
	assert.Equal(t, []string{"A", "B"}, res.Streams[constants.CaseNumber])
	assert.Equal(t, []string{"M", "F"}, res.Streams[constants.Sex])
	// the default table includes labels absent from these pages
	assert.Empty(t, res.Records)
}

func TestRun_FieldStreamCustomLabels(t *testing.T) {
	p := newProcessor(t, func(c *common.ExtractConfig) {
		c.Fields = []common.FieldLabel{
			{Name: "case number", Label: "Case_Number", Locator: "next_line"},
			{Name: "sex", Label: "Sex:", Locator: "same_line"},
		}
	})
	src := source.NewStatic("s", []entity.Document{
		{Name: "1", Text: fieldPage("A", "M")},
		{Name: "2", Text: fieldPage("B", "F")},
	})
	res, err := p.Run(context.Background(), src, "fields")
	require.NoError(t, err)
	assert.Equal(t, []entity.Record{
		{constants.CaseNumber: "A", constants.Sex: "M"},
		{constants.CaseNumber: "B", constants.Sex: "F"},
	}, res.Records)
}

func TestRun_PrecleanStripsCarriageReturns(t *testing.T) {
	labels := func(c *common.ExtractConfig) {
		c.Fields = []common.FieldLabel{{Name: "case_number", Label: "Case_Number", Locator: "next_line"}}
	}
	docs := []entity.Document{{Name: "1", Text: "Case_Number\r\nA\r\n"}}

	res, err := newProcessor(t, labels).Run(context.Background(), source.NewStatic("s", docs), "fields")
	require.NoError(t, err)
	assert.Equal(t, "A", res.Records[0][constants.CaseNumber])

	raw, err := newProcessor(t, func(c *common.ExtractConfig) { labels(c); c.Preclean = false }).
		Run(context.Background(), source.NewStatic("s", docs), "fields")
	require.NoError(t, err)
	assert.Equal(t, "A\r", raw.Records[0][constants.CaseNumber])
	assert.Equal(t, "Case_Number\r\nA\r\n", docs[0].Text, "documents are not mutated")
}

func TestRun_PrecleanAndSameLineSuffix(t *testing.T) {
	labels := func(c *common.ExtractConfig) {
		c.Fields = []common.FieldLabel{
			{Name: "case_number", Label: "Case_Number", Locator: "next_line"},
			{Name: "sex", Label: "Sex:", Locator: "same_line"},
		}
	}
	docs := []entity.Document{{Name: "1", Text: "Case_Number\n17-1   \nSex: M \n"}}

	res, err := newProcessor(t, labels).Run(context.Background(), source.NewStatic("s", docs), "fields")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "17-1", res.Records[0][constants.CaseNumber])
	assert.Equal(t, "M", res.Records[0][constants.Sex])

	raw, err := newProcessor(t, func(c *common.ExtractConfig) { labels(c); c.Preclean = false }).
		Run(context.Background(), source.NewStatic("s", docs), "fields")
	require.NoError(t, err)
	require.Len(t, raw.Records, 1)
	assert.Equal(t, "17-1   ", raw.Records[0][constants.CaseNumber])
	assert.Equal(t, " ", raw.Records[0][constants.Sex], "the last character of the line, blank included")
}

func TestStrategy_Resolution(t *testing.T) {
	p := newProcessor(t, func(c *common.ExtractConfig) { c.FieldStreamEnabled = false })

	s, err := p.Strategy("FIELDS")
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyBlocks, s.Name(), "disabled field streams fall back to blocks")

	s, err = p.Strategy("")
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyBlocks, s.Name())

	_, err = p.Strategy("columns")
	require.ErrorIs(t, err, common.ErrInvalidInput)

	q := newProcessor(t, func(c *common.ExtractConfig) { c.Strategy = constants.StrategyFields })
	s, err = q.Strategy("")
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyFields, s.Name())
}

func TestRun_UnknownStrategyTouchesNothing(t *testing.T) {
	tr := &fakeTracker{}
	p := newProcessor(t, nil, WithTracker(tr))
	_, err := p.Run(context.Background(), source.NewStatic("s", nil), "columns")
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, tr.started)
}

func TestRun_SourceErrorMarksRunFailed(t *testing.T) {
	tr := &fakeTracker{}
	boom := errors.New("bucket gone")
	p := newProcessor(t, nil, WithTracker(tr))

	_, err := p.Run(context.Background(), failingSource{err: boom}, "")
	require.ErrorIs(t, err, boom)
	require.Len(t, tr.failed, 1)
	assert.Contains(t, tr.failed[0], "bucket gone")
	assert.Empty(t, tr.finished)
}

func TestRun_SinkErrorIsWrapped(t *testing.T) {
	tr := &fakeTracker{}
	bad := &recordingSink{name: "bad", err: errors.New("disk full")}
	after := &recordingSink{name: "after"}
	p := newProcessor(t, nil, WithSinks(bad, after), WithTracker(tr))

	_, err := p.Run(context.Background(), source.NewStatic("s", nil), "")
	require.ErrorIs(t, err, common.ErrSink)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, after.got, "later sinks are skipped")
	assert.Len(t, tr.failed, 1)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProcessor(t, nil).Run(ctx, source.NewStatic("s", []entity.Document{{Name: "a"}}), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFieldSpecs(t *testing.T) {
	specs, err := FieldSpecs(common.ExtractConfig{})
	require.NoError(t, err)
	assert.Len(t, specs, 5)

	_, err = FieldSpecs(common.ExtractConfig{Fields: []common.FieldLabel{{Name: "shoe", Label: "Shoe", Locator: "next_line"}}})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = FieldSpecs(common.ExtractConfig{Fields: []common.FieldLabel{{Name: "sex", Label: "Sex:", Locator: "below"}}})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = FieldSpecs(common.ExtractConfig{Fields: []common.FieldLabel{{Name: "sex", Label: " ", Locator: "same_line"}}})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

// Directory in, CSV and SQLite out.
func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "log_2018.txt"), []byte(block("18-1", "01/01/18 10:00", "ASHBY STATION")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "log_2017.txt"), []byte(block("17-1", "01/01/17 10:00", "12TH ST STATION")), 0o644))

	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	defer db.Close(nil)
	require.NoError(t, repository.Migrate(ctx, db))
	runs := repository.NewRunRepository(db, nil)

	out := filepath.Join(t.TempDir(), "arrests.csv")
	p := newProcessor(t, nil, WithSinks(export.NewCSVSink(out, nil)), WithTracker(runs))

	res, err := p.Run(ctx, source.NewDirectory(root, source.DirectoryOptions{}, nil), "")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "17-1,"))
	assert.True(t, strings.HasPrefix(lines[2], "18-1,"))

	run, err := runs.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusOK), run.Status)
	assert.Equal(t, 2, run.Records)
	stored, err := runs.ListRecords(ctx, res.RunID.String())
	require.NoError(t, err)
	assert.Equal(t, res.Records, stored)
}

func TestRun_ReusesRunIDFromContext(t *testing.T) {
	id := uuid.New()
	ctx := common.WithRunID(context.Background(), id.String())
	res, err := newProcessor(t, nil).Run(ctx, source.NewStatic("s", nil), "")
	require.NoError(t, err)
	assert.Equal(t, id, res.RunID)

	// garbage is ignored
	ctx = common.WithRunID(context.Background(), "not-a-uuid")
	res, err = newProcessor(t, nil).Run(ctx, source.NewStatic("s", nil), "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.RunID)
}

package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

func TestRecordToValue_KeepsAbsentFieldsAbsent(t *testing.T) {
	v := RecordToValue(entity.Record{constants.CaseNumber: "17-00123"})
	fields := v.GetStructValue().GetFields()
	assert.Len(t, fields, 1)
	assert.Equal(t, "17-00123", fields["case_number"].GetStringValue())
}

func TestResultToStruct(t *testing.T) {
	res := entity.Result{
		RunID:     uuid.New(),
		Strategy:  constants.StrategyBlocks,
		Documents: 2,
		Records:   []entity.Record{{constants.CaseNumber: "A"}, {constants.CaseNumber: "B"}},
		Dropped:   map[string]int{"no_date": 3},
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}

	s := ResultToStruct(res, false)
	assert.Equal(t, res.RunID.String(), StringField(s, "run_id"))
	assert.Equal(t, 2, IntField(s, "record_count"))
	assert.Equal(t, 1500, IntField(s, "duration_ms"))
	assert.Equal(t, "2024-01-02T03:04:05Z", StringField(s, "started_at"))
	assert.Equal(t, 3, IntField(s.Fields["dropped"].GetStructValue(), "no_date"))
	assert.NotContains(t, s.Fields, "records")

	s = ResultToStruct(res, true)
	recs := s.Fields["records"].GetListValue().GetValues()
	require.Len(t, recs, 2)
	assert.Equal(t, "B", StringField(recs[1].GetStructValue(), "case_number"))
}

func TestRunToStruct(t *testing.T) {
	msg := "boom"
	fin := time.Now()
	run := &entity.ExtractRun{ID: uuid.New(), Status: string(constants.RunStatusFailed), FinishedAt: &fin, ErrorMessage: &msg}
	s := RunToStruct(run)
	assert.Equal(t, "FAILED", StringField(s, "status"))
	assert.Equal(t, "boom", StringField(s, "error"))
	assert.Contains(t, s.Fields, "finished_at")

	s = RunToStruct(&entity.ExtractRun{ID: uuid.New()})
	assert.NotContains(t, s.Fields, "finished_at")
	assert.NotContains(t, s.Fields, "error")
}

func TestDocumentsFromStruct(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{
		"documents": []any{
			map[string]any{"name": "b.txt", "text": "second"},
			map[string]any{"text": "unnamed", "page": 2},
		},
	})
	require.NoError(t, err)

	docs, err := DocumentsFromStruct(req)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b.txt", docs[0].Name)
	assert.Equal(t, 0, docs[0].OrderKey)
	assert.Equal(t, "document-2", docs[1].Name)
	assert.Equal(t, 1, docs[1].OrderKey)
	assert.Equal(t, 2, docs[1].Page)
	assert.Equal(t, constants.TEXT, docs[1].Format)
}

func TestDocumentsFromStruct_Invalid(t *testing.T) {
	_, err := DocumentsFromStruct(&structpb.Struct{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	req, err := structpb.NewStruct(map[string]any{"documents": []any{"plain"}})
	require.NoError(t, err)
	_, err = DocumentsFromStruct(req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/arrestlog/internal/async"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/pipeline"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
	"github.com/joseph-ayodele/arrestlog/internal/source"
)

func block(caseNo, date, location string) string {
	return strings.Join([]string{
		"Case Number", caseNo,
		"Date Arrest", date,
		"Primary Location", location,
		"Sex: f",
		"Race: b",
		"PC 647(f) DRUNK IN PUBLIC",
	}, "\n") + "\n"
}

type harness struct {
	client *Client
	conn   *grpc.ClientConn
	root   string
}

func newHarness(t *testing.T, cfg common.ServerConfig) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := ConnectDB(ctx, common.DatabaseConfig{Driver: repository.DriverSQLite, DSN: "file::memory:", AutoMigrate: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	runs := repository.NewRunRepository(db, nil)

	proc, err := pipeline.NewProcessor(common.DefaultConfig().Extract, nil, pipeline.WithTracker(runs))
	require.NoError(t, err)

	root := t.TempDir()
	q := async.NewProcessorQueue(proc, nil, async.WithWorkers(1))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	svc := NewService(proc, cfg, nil,
		WithQueue(q, NewDirectoryResolver(root, source.DirectoryOptions{}, nil)),
		WithRuns(runs),
	)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, svc)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewClient(conn), conn: conn, root: root}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func code(err error) codes.Code {
	return status.Code(err)
}

func TestReconstruct(t *testing.T) {
	h := newHarness(t, common.ServerConfig{MaxDocuments: 10})

	out, err := h.client.Reconstruct(context.Background(), mustStruct(t, map[string]any{
		"documents": []any{
			map[string]any{"name": "p1.txt", "text": block("17-1", "01/01/17 10:00", "12TH ST STATION")},
			map[string]any{"name": "p2.txt", "text": block("17-2", "01/02/17 10:00", "ASHBY STATION")},
		},
	}))
	require.NoError(t, err)

	recs := out.Fields["records"].GetListValue().GetValues()
	require.Len(t, recs, 2)
	assert.Equal(t, "17-1", recs[0].GetStructValue().Fields["case_number"].GetStringValue())
	assert.Equal(t, "17-2", recs[1].GetStructValue().Fields["case_number"].GetStringValue())
	assert.Equal(t, "blocks", out.Fields["strategy"].GetStringValue())

	// persisted through the tracker
	got, err := h.client.GetRun(context.Background(), mustStruct(t, map[string]any{
		"run_id":          out.Fields["run_id"].GetStringValue(),
		"include_records": true,
	}))
	require.NoError(t, err)
	assert.Equal(t, "OK", got.Fields["status"].GetStringValue())
	assert.Len(t, got.Fields["records"].GetListValue().GetValues(), 2)
}

func TestReconstruct_InvalidRequests(t *testing.T) {
	h := newHarness(t, common.ServerConfig{MaxDocuments: 1})
	doc := map[string]any{"name": "p1.txt", "text": "x"}

	cases := map[string]map[string]any{
		"no documents":   {"documents": []any{}},
		"not a list":     {"documents": "x"},
		"too many":       {"documents": []any{doc, doc}},
		"unknown method": {"documents": []any{doc}, "strategy": "magic"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.client.Reconstruct(context.Background(), mustStruct(t, req))
			assert.Equal(t, codes.InvalidArgument, code(err))
		})
	}
}

func TestSubmitRun(t *testing.T) {
	h := newHarness(t, common.ServerConfig{})
	dir := filepath.Join(h.root, "2017")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bart-1.txt"), []byte(block("17-9", "03/03/17 08:00", "MACARTHUR STATION")), 0o644))

	out, err := h.client.SubmitRun(context.Background(), mustStruct(t, map[string]any{"prefix": "2017"}))
	require.NoError(t, err)
	assert.Equal(t, "QUEUED", out.Fields["status"].GetStringValue())
	runID := out.Fields["run_id"].GetStringValue()

	var run *structpb.Struct
	require.Eventually(t, func() bool {
		run, err = h.client.GetRun(context.Background(), mustStruct(t, map[string]any{"run_id": runID, "include_records": true}))
		return err == nil && run.Fields["status"].GetStringValue() == "OK"
	}, 5*time.Second, 20*time.Millisecond)

	recs := run.Fields["records"].GetListValue().GetValues()
	require.Len(t, recs, 1)
	assert.Equal(t, "17-9", recs[0].GetStructValue().Fields["case_number"].GetStringValue())
}

func TestSubmitRun_PrefixRestricted(t *testing.T) {
	h := newHarness(t, common.ServerConfig{})

	_, err := h.client.SubmitRun(context.Background(), mustStruct(t, map[string]any{"prefix": "../etc"}))
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = h.client.SubmitRun(context.Background(), mustStruct(t, map[string]any{"prefix": "missing"}))
	assert.Equal(t, codes.NotFound, code(err))
}

func TestGetRun_Errors(t *testing.T) {
	h := newHarness(t, common.ServerConfig{})

	_, err := h.client.GetRun(context.Background(), mustStruct(t, map[string]any{"run_id": "nope"}))
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = h.client.GetRun(context.Background(), mustStruct(t, map[string]any{"run_id": "6f1c1a44-7c5e-4d7e-9f43-0b1e4a0b9c11"}))
	assert.Equal(t, codes.NotFound, code(err))
}

func TestService_Unconfigured(t *testing.T) {
	svc := NewService(nil, common.ServerConfig{}, nil)
	_, err := svc.SubmitRun(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, code(err))
	_, err = svc.GetRun(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, code(err))
}

func TestHealth(t *testing.T) {
	h := newHarness(t, common.ServerConfig{})
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCleanPrefix(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", "2017/": "2017", "a//b/./c": "a/b/c"} {
		got, err := cleanPrefix(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := cleanPrefix("a/../../b")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestResolverFromConfig(t *testing.T) {
	r, err := ResolverFromConfig(common.SourceConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ResolverFromConfig(common.SourceConfig{Bucket: common.BucketConfig{
		Endpoint: "localhost:9000", Name: "ocr", Prefix: "bart",
	}}, nil, nil)
	require.NoError(t, err)
	src, err := r.Resolve("2017")
	require.NoError(t, err)
	assert.Equal(t, "ocr/bart/2017", src.Name())
}

// Package server exposes reconstruction over gRPC. Requests and responses are
// google.protobuf.Struct messages so the service needs no generated code.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/async"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
	"github.com/joseph-ayodele/arrestlog/internal/source"
	"github.com/joseph-ayodele/arrestlog/internal/utils"
)

const ServiceName = "arrestlog.v1.ReconstructionService"

// maxDocumentRunes bounds the text of a single inline document.
const maxDocumentRunes = 4 << 20

// RequestIDHeader is read from incoming metadata when present.
const RequestIDHeader = "x-request-id"

type ReconstructionServer interface {
	Reconstruct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unary(method string, call func(ReconstructionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReconstructionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReconstructionServer), ctx, req.(*structpb.Struct))
		})
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReconstructionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconstruct", Handler: unary("Reconstruct", ReconstructionServer.Reconstruct)},
		{MethodName: "SubmitRun", Handler: unary("SubmitRun", ReconstructionServer.SubmitRun)},
		{MethodName: "GetRun", Handler: unary("GetRun", ReconstructionServer.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arrestlog/v1/reconstruction.proto",
}

func Register(s grpc.ServiceRegistrar, srv ReconstructionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the service over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Reconstruct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reconstruct", req)
}

func (c *Client) SubmitRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return c.invoke(ctx, "SubmitRun", req)
}

func (c *Client) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", req)
}

// Service implements ReconstructionServer.
type Service struct {
	runner   async.Runner
	queue    async.Queue
	resolver SourceResolver
	runs     repository.RunRepository
	cfg      common.ServerConfig
	logger   *slog.Logger
}

type Option func(*Service)

// WithQueue enables SubmitRun: prefixes are resolved by r and run on q.
func WithQueue(q async.Queue, r SourceResolver) Option {
	return func(s *Service) {
		s.queue = q
		s.resolver = r
	}
}

// WithRuns enables GetRun.
func WithRuns(runs repository.RunRepository) Option {
	return func(s *Service) { s.runs = runs }
}

func NewService(runner async.Runner, cfg common.ServerConfig, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{runner: runner, cfg: cfg, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) withRequestID(ctx context.Context) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return common.WithRequestID(ctx, strings.TrimSpace(v[0]))
		}
	}
	return common.WithRequestID(ctx, uuid.NewString())
}

var strategies = []string{constants.StrategyBlocks, constants.StrategyFields}

// Reconstruct runs a strategy over the documents carried in the request and
// returns the records inline.
//
//	{"strategy": "blocks", "documents": [{"name": "p1.txt", "text": "..."}]}
func (s *Service) Reconstruct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = s.withRequestID(ctx)
	log := common.LoggerFrom(ctx, s.logger)

	docs, err := utils.DocumentsFromStruct(req)
	if err != nil {
		log.Warn("reconstruct: bad documents", "error", err)
		return nil, common.ToStatus(err)
	}
	strategy := utils.StringField(req, "strategy")

	v := common.NewValidator().
		Field("documents", len(docs), common.AtLeast(1)).
		Field("strategy", strategy, common.OneOf(strategies...))
	if s.cfg.MaxDocuments > 0 {
		v.Field("documents", len(docs), common.AtMost(s.cfg.MaxDocuments))
	}
	for _, d := range docs {
		// counted, not the text itself, so errors stay small
		v.Field(d.Name, utf8.RuneCountInString(d.Text), common.AtMost(maxDocumentRunes))
	}
	if err := v.Error(); err != nil {
		log.Warn("reconstruct: invalid request", "error", err)
		return nil, common.ToStatus(err)
	}

	log.Info("reconstruct request", "documents", len(docs), "strategy", strategy)
	res, err := s.runner.Run(ctx, source.NewStatic("request", docs), strategy)
	if err != nil {
		log.Error("reconstruct failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return utils.ResultToStruct(res, true), nil
}

// SubmitRun queues a run over a prefix of the configured source and returns
// its ID straight away. Poll GetRun for the outcome.
func (s *Service) SubmitRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = s.withRequestID(ctx)
	log := common.LoggerFrom(ctx, s.logger)

	if s.queue == nil || s.resolver == nil {
		return nil, status.Error(codes.FailedPrecondition, "no run source configured")
	}
	strategy := utils.StringField(req, "strategy")
	if err := common.NewValidator().Field("strategy", strategy, common.OneOf(strategies...)).Error(); err != nil {
		return nil, common.ToStatus(err)
	}
	src, err := s.resolver.Resolve(utils.StringField(req, "prefix"))
	if err != nil {
		log.Warn("submit run: bad prefix", "error", err)
		return nil, common.ToStatus(err)
	}

	runID := uuid.New()
	err = s.queue.Enqueue(ctx, async.Job{
		RunID:       runID,
		Source:      src,
		Strategy:    strategy,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
	})
	if errors.Is(err, async.ErrClosed) {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if err != nil {
		return nil, common.ToStatus(err)
	}

	log.Info("run submitted", "run_id", runID, "source", src.Name())
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"run_id": structpb.NewStringValue(runID.String()),
		"source": structpb.NewStringValue(src.Name()),
		"status": structpb.NewStringValue("QUEUED"),
	}}, nil
}

// GetRun reports a persisted run, with its records when include_records is set.
func (s *Service) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = s.withRequestID(ctx)
	log := common.LoggerFrom(ctx, s.logger)

	if s.runs == nil {
		return nil, status.Error(codes.FailedPrecondition, "run store not configured")
	}
	raw := strings.TrimSpace(utils.StringField(req, "run_id"))
	if err := common.NewValidator().Field("run_id", raw, common.Required, common.UUID).Error(); err != nil {
		return nil, common.ToStatus(err)
	}
	runID := uuid.MustParse(raw)

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if !repository.IsNotFound(err) {
			log.Error("get run failed", "run_id", runID, "error", err)
		}
		return nil, common.ToStatus(err)
	}
	out := utils.RunToStruct(run)
	if utils.BoolField(req, "include_records") {
		recs, err := s.runs.ListRecords(ctx, raw)
		if err != nil {
			log.Error("list records failed", "run_id", runID, "error", err)
			return nil, common.ToStatus(err)
		}
		out.Fields["records"] = utils.RecordsToList(recs)
	}
	return out, nil
}

// Package api provides the gRPC aggregation service for mdcollate.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/mdcollate/internal/core/db"
	"github.com/solatis/mdcollate/internal/pipeline"
	"github.com/solatis/mdcollate/internal/types"
)

// RunRecorder persists and loads runs. *db.RunStore implements it.
type RunRecorder interface {
	SaveRun(ctx context.Context, res *pipeline.Result) error
	GetRun(ctx context.Context, id types.RunID) (*db.Run, error)
}

// AggregationService implements AggregationServer.
// Thin orchestration layer delegating to the pipeline and the run store.
type AggregationService struct {
	runner *pipeline.Runner
	store  RunRecorder
	logger *slog.Logger
}

// NewAggregationService creates the service. store may be nil, in which case
// runs are not persisted and GetRun answers Unimplemented.
func NewAggregationService(runner *pipeline.Runner, store RunRecorder, logger *slog.Logger) (*AggregationService, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AggregationService{runner: runner, store: store, logger: logger}, nil
}

// Aggregate runs the request's schema over its documents.
func (s *AggregationService) Aggregate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	schemaTree, docs, err := decodeAggregateRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.runner.Run(ctx, schemaTree, docs)
	if err != nil {
		s.logger.Warn("aggregation failed", "documents", len(docs), "error", err)
		return nil, toStatus(err)
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, res); err != nil {
			s.logger.Error("failed to persist run", "run_id", res.RunID, "error", err)
			return nil, status.Error(codes.Unavailable, fmt.Sprintf("failed to persist run: %v", err))
		}
	}

	s.logger.Info("aggregation complete",
		"run_id", res.RunID, "mode", res.Mode, "documents", res.Documents,
		"outputs", len(res.Outputs), "warnings", len(res.Warnings))

	out, err := encodeResult(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GetRun returns a persisted run by run_id.
func (s *AggregationService) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unimplemented, "run store not configured")
	}

	raw, ok := req.GetFields()["run_id"]
	if !ok || raw.GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id required")
	}
	id, err := types.ParseRunID(raw.GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid run_id: %v", err))
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := encodeRun(run)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

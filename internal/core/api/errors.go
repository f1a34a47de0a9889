package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/mdcollate/internal/types"
)

// toStatus maps engine and store errors to gRPC status codes.
// Structural schema errors map to INVALID_ARGUMENT.
// Document budget violations map to RESOURCE_EXHAUSTED.
// Context timeouts map to DEADLINE_EXCEEDED, cancellation to CANCELED.
// Everything else is INTERNAL.
func toStatus(err error) error {
	switch {
	case types.IsStructural(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrTooManyDocuments):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, types.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

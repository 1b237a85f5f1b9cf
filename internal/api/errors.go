package api

import (
	"context"
	"errors"

	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps an engine error to a gRPC status error.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, store.ErrInvalidQuery):
		code = codes.InvalidArgument
	case errors.Is(err, intsync.ErrNoThreadID), errors.Is(err, intsync.ErrUnresolvedThread):
		code = codes.FailedPrecondition
	case errors.Is(err, intsync.ErrNotFound), errors.Is(err, provider.ErrThreadNotFound):
		code = codes.NotFound
	case errors.Is(err, provider.ErrProviderUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}

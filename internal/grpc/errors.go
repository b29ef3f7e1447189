package grpcserver

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inspectionDispatch/internal/dispatch"
	"inspectionDispatch/internal/logger"
)

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, dispatch.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, dispatch.ErrAlreadyAssigned):
		return codes.AlreadyExists
	case errors.Is(err, dispatch.ErrNotAvailable),
		errors.Is(err, dispatch.ErrOutOfRange),
		errors.Is(err, dispatch.ErrInvalidTransition):
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// toStatus maps a dispatch error to a gRPC status. Domain errors carry a
// Struct detail with "kind" and their structured fields so UIs can explain the
// rejection; anything else is logged and reported as Internal.
func toStatus(log logger.Logger, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeFor(err)
	if code == codes.Internal {
		log.Errorf("internal error: %v", err)
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
	st := status.New(code, err.Error())
	detail := map[string]any{"kind": dispatch.KindName(err)}
	for k, v := range dispatch.FieldsOf(err) {
		detail[k] = v
	}
	s, convErr := toStruct(detail)
	if convErr != nil {
		return st.Err()
	}
	withDetails, detErr := st.WithDetails(s)
	if detErr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

package rpc

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

// ErrRecordMismatch is returned by Client.Sign when the envelope does not
// carry the record that was sent.
var ErrRecordMismatch = errors.New("rpc: signed record does not match request")

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, canonical.ErrEncoding):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, keys.ErrNoKey):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC turns a status error from the server back into the sentinel the
// local API would have returned.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", canonical.ErrEncoding, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", keys.ErrNoKey, st.Message())
	case codes.Internal:
		return fmt.Errorf("%w: %s", signature.ErrSigning, st.Message())
	default:
		return err
	}
}

package analyzer

import (
	"context"
	"errors"

	"github.com/jsnap/internal/parser/hprof"
	apperrors "github.com/jsnap/pkg/errors"
)

// classifyParseError maps a decoder failure onto an application error code.
func classifyParseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, hprof.ErrUnsupportedVersion):
		return apperrors.Wrap(apperrors.CodeUnsupportedVersion, "unsupported heap dump format", err)
	case errors.Is(err, hprof.ErrUnexpectedEOF),
		errors.Is(err, hprof.ErrInvalidIDSize),
		errors.Is(err, hprof.ErrInvalidFieldType),
		errors.Is(err, hprof.ErrStreamDesync),
		errors.Is(err, hprof.ErrMalformedRecord):
		return apperrors.Wrap(apperrors.CodeParseError, "failed to decode heap dump", err)
	default:
		return apperrors.Wrap(apperrors.CodeIOError, "failed to read heap dump", err)
	}
}

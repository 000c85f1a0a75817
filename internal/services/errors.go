package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrSegmentation  = errors.New("segmentation error")
	ErrExtraction    = errors.New("extraction error")
	ErrCompression   = errors.New("compression error")
	ErrMerge         = errors.New("merge error")
	ErrUnknownTask   = errors.New("unknown task")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrCanceled      = errors.New("canceled")
)

// markers is ordered from most to least specific so Details reports the
// stage marker when an error carries both a stage and a tool marker.
var markers = []struct {
	err  error
	kind ErrorKind
	hint string
}{
	{ErrValidation, KindValidation, "check the uploaded file"},
	{ErrSegmentation, KindSegmentation, "input may be corrupt or have no audio stream"},
	{ErrExtraction, KindExtraction, "inspect ffmpeg stderr for the failing segment"},
	{ErrCompression, KindCompression, "inspect ffmpeg stderr for the failing segment"},
	{ErrMerge, KindMerge, "inspect the concat manifest and ffmpeg stderr"},
	{ErrUnknownTask, KindUnknownTask, "task id was never issued or has been evicted"},
	{ErrCanceled, KindCanceled, "task was canceled or timed out"},
	{ErrConfiguration, KindConfiguration, "check the configuration file"},
	{ErrExternalTool, KindExternalTool, "verify ffmpeg is installed and on PATH"},
}

// ErrorKind is the coarse classification of a failure.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindSegmentation  ErrorKind = "segmentation"
	KindExtraction    ErrorKind = "extraction"
	KindCompression   ErrorKind = "compression"
	KindMerge         ErrorKind = "merge"
	KindUnknownTask   ErrorKind = "unknown_task"
	KindCanceled      ErrorKind = "canceled"
	KindConfiguration ErrorKind = "configuration"
	KindExternalTool  ErrorKind = "external_tool"
	KindUnknown       ErrorKind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	wrapped := &wrappedError{
		marker:    marker,
		stage:     strings.TrimSpace(stage),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
	detail := buildDetail(stage, operation, message)
	if err != nil {
		wrapped.text = fmt.Sprintf("%s: %s: %s", marker.Error(), detail, err.Error())
	} else {
		wrapped.text = fmt.Sprintf("%s: %s", marker.Error(), detail)
	}
	return wrapped
}

type wrappedError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
	text      string
}

func (e *wrappedError) Error() string { return e.text }

func (e *wrappedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// ErrorDetails is a flattened view of a failure used for structured logging.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details classifies err. Errors that were not produced by Wrap still get a
// Kind when they match a marker through errors.Is.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: KindUnknown, Message: err.Error()}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			details.Kind = m.kind
			details.Hint = m.hint
			break
		}
	}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		details.Stage = wrapped.stage
		details.Operation = wrapped.operation
		if wrapped.message != "" {
			details.Message = wrapped.message
		}
		details.Cause = wrapped.cause
	}
	return details
}

// IsPipelineFailure reports whether err carries one of the stage markers that
// reduce a task to Failed.
func IsPipelineFailure(err error) bool {
	return errors.Is(err, ErrSegmentation) ||
		errors.Is(err, ErrExtraction) ||
		errors.Is(err, ErrCompression) ||
		errors.Is(err, ErrMerge)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

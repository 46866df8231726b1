package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"deskd/internal/util/logger/sl"
)

// FallbackMessage is sent when a fault carries no usable message.
const FallbackMessage = "An unexpected error occurred"

// HandlerFunc is a typed request handler.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req, caller Caller) (Resp, error)

type handlerOptions struct {
	label string
	log   *slog.Logger
}

type HandlerOption func(*handlerOptions)

// WithLabel sets the label faults are logged under. Defaults to the
// channel name.
func WithLabel(label string) HandlerOption {
	return func(o *handlerOptions) {
		o.label = label
	}
}

func WithLogger(log *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.log = log
	}
}

// Register binds fn to channel on t. The payload is decoded into Req, and
// whatever fn returns is translated into a Response:
//
//   - a nil error becomes {success: true, data: resp}
//   - an *Error anywhere in the chain keeps its code and message
//   - any other error, or a panic, is logged under the label and becomes
//     UNKNOWN_ERROR with the fault's message
func Register[Req, Resp any](t Transport, channel string, fn HandlerFunc[Req, Resp], opts ...HandlerOption) {
	register(t, channel, fn, true, opts)
}

// RegisterNoRequest is Register for handlers that take no payload.
func RegisterNoRequest[Resp any](t Transport, channel string, fn func(ctx context.Context, caller Caller) (Resp, error), opts ...HandlerOption) {
	Register(t, channel, func(ctx context.Context, _ json.RawMessage, caller Caller) (Resp, error) {
		return fn(ctx, caller)
	}, opts...)
}

// RegisterNoData is Register for handlers whose success carries no data.
func RegisterNoData[Req any](t Transport, channel string, fn func(ctx context.Context, req Req, caller Caller) error, opts ...HandlerOption) {
	register(t, channel, func(ctx context.Context, req Req, caller Caller) (struct{}, error) {
		return struct{}{}, fn(ctx, req, caller)
	}, false, opts)
}

func register[Req, Resp any](t Transport, channel string, fn HandlerFunc[Req, Resp], withData bool, opts []HandlerOption) {
	o := handlerOptions{label: channel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	log := o.log.With(slog.String("channel", channel))

	t.Handle(channel, func(ctx context.Context, payload json.RawMessage, caller Caller) (resp Response) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				resp = unknownFault(log, o.label, err)
			}
		}()

		var req Req
		if p := bytes.TrimSpace(payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
			if err := json.Unmarshal(p, &req); err != nil {
				return Fail(CodeParse, fmt.Sprintf("invalid request payload: %v", err))
			}
		}

		out, err := fn(ctx, req, caller)
		if err != nil {
			if de, ok := AsError(err); ok {
				return FailWith(de)
			}
			return unknownFault(log, o.label, err)
		}
		if !withData {
			return Done()
		}
		return Ok(out)
	})
}

func unknownFault(log *slog.Logger, label string, err error) Response {
	log.Error(label+" error", sl.Err(err))

	msg := FallbackMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Fail(CodeUnknown, msg)
}

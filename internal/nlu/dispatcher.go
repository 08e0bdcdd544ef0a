package nlu

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

const (
	msgEmptyInput = "I didn't catch that. Please try again."
	msgUnknown    = "Sorry, I don't understand that yet."
)

// Handler fulfils one command by calling (at most) one external service.
// Handlers report failures in the Response and never return an error.
type Handler interface {
	Handle(ctx context.Context, arg string) models.Response
}

type HandlerFunc func(ctx context.Context, arg string) models.Response

func (f HandlerFunc) Handle(ctx context.Context, arg string) models.Response {
	return f(ctx, arg)
}

// Registry binds commands to handlers. A handler registered for Unknown acts
// as the fallback for utterances no keyword matched.
type Registry map[Command]Handler

func (r Registry) Enabled(cmd Command) bool {
	_, ok := r[cmd]
	return ok
}

// Dispatch runs exactly one handler for intent.
func (r Registry) Dispatch(ctx context.Context, intent Intent) (resp models.Response) {
	if intent.Utterance == "" {
		return models.Response{Text: msgEmptyInput, Kind: apperr.RecognitionFailure}
	}

	handler, ok := r[intent.Command]
	if !ok {
		if intent.Command == Unknown {
			return models.Response{Text: msgUnknown, Kind: apperr.InvalidArgument}
		}
		return models.Failure(apperr.New(apperr.AuthFailure, "dispatch",
			fmt.Sprintf("%s service is not configured.", capitalize(intent.Command.String())), nil))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Handler panicked", "command", intent.Command, "panic", rec)
			resp = models.Failure(apperr.New(apperr.Unclassified, "dispatch", "", fmt.Errorf("panic: %v", rec)))
		}
	}()

	arg := intent.Arg
	if intent.Command == Unknown {
		arg = intent.Utterance
	}

	return handler.Handle(ctx, arg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

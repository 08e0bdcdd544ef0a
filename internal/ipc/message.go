package ipc

import (
	"context"
	"errors"

	"voxpro/internal/assistant"
	"voxpro/internal/models"
)

const (
	CmdTrigger = "trigger"
	CmdAsk     = "ask"
	CmdHistory = "history"
	CmdStatus  = "status"
)

type Request struct {
	Cmd   string `json:"cmd"`
	Text  string `json:"text,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type Response struct {
	OK          bool                `json:"ok"`
	Error       string              `json:"error,omitempty"`
	Interaction *models.Interaction `json:"interaction,omitempty"`
	Records     []models.Record     `json:"records,omitempty"`
	Status      *assistant.Status   `json:"status,omitempty"`
}

func errorResponse(msg string) Response {
	return Response{Error: msg}
}

// Service is the part of *assistant.Assistant the socket exposes.
type Service interface {
	Process(ctx context.Context, req assistant.Request) models.Interaction
	Listen(ctx context.Context) (models.Interaction, error)
	Recent(ctx context.Context, limit int) ([]models.Record, error)
	Status() assistant.Status
}

// NewHandler maps control commands onto svc.
func NewHandler(svc Service, historyLimit int) HandlerFunc {
	return func(ctx context.Context, req Request) Response {
		switch req.Cmd {
		case CmdTrigger:
			it, err := svc.Listen(ctx)
			if errors.Is(err, assistant.ErrNoMicrophone) {
				return errorResponse("microphone not configured")
			}
			if err != nil {
				return errorResponse(err.Error())
			}
			return Response{OK: true, Interaction: &it}

		case CmdAsk:
			it := svc.Process(ctx, assistant.Request{Text: req.Text, Source: models.SourceText})
			return Response{OK: true, Interaction: &it}

		case CmdHistory:
			limit := req.Limit
			if limit <= 0 {
				limit = historyLimit
			}
			records, err := svc.Recent(ctx, limit)
			if err != nil {
				return errorResponse("history unavailable: " + err.Error())
			}
			return Response{OK: true, Records: records}

		case CmdStatus:
			st := svc.Status()
			return Response{OK: true, Status: &st}

		default:
			return errorResponse("unknown command " + req.Cmd)
		}
	}
}

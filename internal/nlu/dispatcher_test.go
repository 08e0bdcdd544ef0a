package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

func TestDispatchRecoversPanics(t *testing.T) {
	reg := Registry{
		Time: HandlerFunc(func(context.Context, string) models.Response {
			panic("boom")
		}),
	}

	var resp models.Response
	assert.NotPanics(t, func() {
		resp = reg.Dispatch(context.Background(), Route("what time is it"))
	})
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.Unclassified, resp.Kind)
	assert.Equal(t, "Sorry, something went wrong.", resp.Text)
}

func TestDispatchWithoutHandler(t *testing.T) {
	reg := Registry{}

	resp := reg.Dispatch(context.Background(), Route("play some jazz"))
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.AuthFailure, resp.Kind)
	assert.Equal(t, "Music service is not configured.", resp.Text)

	resp = reg.Dispatch(context.Background(), Route("   "))
	assert.Equal(t, apperr.RecognitionFailure, resp.Kind)
	assert.Equal(t, msgEmptyInput, resp.Text)

	resp = reg.Dispatch(context.Background(), Route("sing a song"))
	assert.Equal(t, apperr.InvalidArgument, resp.Kind)
	assert.Equal(t, msgUnknown, resp.Text)
}

func TestDispatchPassesArgument(t *testing.T) {
	var got string
	reg := Registry{
		Weather: HandlerFunc(func(_ context.Context, arg string) models.Response {
			got = arg
			return models.Response{Text: "ok", OK: true}
		}),
	}

	resp := reg.Dispatch(context.Background(), Route("weather in Paris"))
	assert.True(t, resp.OK)
	assert.Equal(t, "paris", got)
}

package handlers

import (
	"context"
	"time"

	"voxpro/internal/models"
)

// Clock answers time and date questions from an injected time source.
type Clock struct {
	now func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Time(context.Context, string) models.Response {
	return models.Success("The time is " + c.now().Format("15:04"))
}

func (c *Clock) Date(context.Context, string) models.Response {
	return models.Success("Today is " + c.now().Format("January 02, 2006"))
}

func Greeting(context.Context, string) models.Response {
	return models.Success("Hello! How can I help?")
}

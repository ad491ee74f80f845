package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   models.ErrorKind
	}{
		{400, models.ErrorKindPermanent},
		{401, models.ErrorKindPermanent},
		{403, models.ErrorKindPermanent},
		{404, models.ErrorKindPermanent},
		{429, models.ErrorKindTransient},
		{500, models.ErrorKindTransient},
		{502, models.ErrorKindTransient},
		{503, models.ErrorKindTransient},
	}
	for _, tt := range tests {
		err := service.StatusError(models.PlatformInstagram, tt.status, "body")
		assert.Equal(t, tt.want, service.ErrorKindOf(err), "status %d", tt.status)

		var se *service.HTTPStatusError
		if assert.ErrorAs(t, err, &se) {
			assert.Equal(t, tt.status, se.Status)
		}
	}
}

func TestErrorKindOf(t *testing.T) {
	t.Parallel()

	permanent := service.Permanent(models.PlatformTiktok, errors.New("rejected"))
	assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(permanent))
	assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(fmt.Errorf("wrapped: %w", permanent)))

	transient := service.Transient(models.PlatformTiktok, errors.New("flaky"))
	assert.Equal(t, models.ErrorKindTransient, service.ErrorKindOf(transient))

	assert.Equal(t, models.ErrorKindTransient, service.ErrorKindOf(context.DeadlineExceeded))
	assert.Equal(t, models.ErrorKindTransient, service.ErrorKindOf(errors.New("connection reset")))
}

func TestPublishError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := service.Transient(models.PlatformYoutube, cause)

	assert.Equal(t, "youtube: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

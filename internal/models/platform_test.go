package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, err := models.ParsePlatform("  YouTube ")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformYoutube, p)

	_, err = models.ParsePlatform("")
	assert.Error(t, err)

	_, err = models.ParsePlatform("myspace")
	assert.Error(t, err)
}

func TestPlatformMetadata_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, models.PlatformMetadata{}.Validate(models.PlatformTiktok))
	assert.NoError(t, models.PlatformMetadata{Tiktok: &models.TiktokOptions{}}.Validate(models.PlatformTiktok))
	assert.Error(t, models.PlatformMetadata{Youtube: &models.YoutubeOptions{}}.Validate(models.PlatformInstagram))
}

func TestPlatformMetadata_Scan(t *testing.T) {
	t.Parallel()

	var m models.PlatformMetadata
	require.NoError(t, m.Scan([]byte(`{"youtube":{"title":"t","privacy_status":"unlisted"}}`)))
	require.NotNil(t, m.Youtube)
	assert.Equal(t, "unlisted", m.Youtube.PrivacyStatus)

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m.Youtube)

	assert.Error(t, m.Scan(42))
}

func TestQueueStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, models.QueueStatusFailed.Valid())
	assert.False(t, models.QueueStatus("done").Valid())

	assert.True(t, models.QueueStatusPublished.Terminal())
	assert.True(t, models.QueueStatusCancelled.Terminal())
	assert.False(t, models.QueueStatusFailed.Terminal())
}

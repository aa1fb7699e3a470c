package vault

import (
	"context"
	"testing"

	"github.com/sheguard/sheguard/server/models"
	"github.com/stretchr/testify/assert"
)

func TestStatistics(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	uploaded, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Photos:    []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")},
		Videos:    []FileRef{ref("c.mp4", "video/mp4")},
		Documents: []FileRef{ref("d.pdf", "application/pdf")},
	})
	assert.Nil(t, err)

	stats, err := service.Statistics("1")
	assert.Nil(t, err)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 2, stats.PhotoCount)
	assert.Equal(t, 1, stats.VideoCount)
	assert.Equal(t, 0, stats.AudioCount)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.TotalVaults)
	assert.Equal(t, uploaded.SubmitDate, stats.LastUpload)
}

func TestStatisticsEmptyVault(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	stats, err := service.Statistics("1")
	assert.Nil(t, err)
	assert.Equal(t, &Statistics{}, stats, "a user with no vaults gets the zero summary")

	_, err = service.Statistics("")
	assert.ErrorIs(t, err, ErrNoUserSignedIn)
}

package vault

import (
	"fmt"

	"github.com/sheguard/sheguard/server/models"
)

// Statistics is a derived summary of a user's vault contents.
type Statistics struct {
	TotalFiles    int   `json:"total_files"`
	PhotoCount    int   `json:"photo_count"`
	VideoCount    int   `json:"video_count"`
	AudioCount    int   `json:"audio_count"`
	DocumentCount int   `json:"document_count"`
	TotalVaults   int   `json:"total_vaults"`
	LastUpload    int64 `json:"last_upload"`
}

// Statistics aggregates counts across all of the user's vaults. A
// user with no vaults gets the zero summary, not an error.
func (s *Service) Statistics(ownerUID string) (*Statistics, error) {
	if ownerUID == "" {
		return nil, ErrNoUserSignedIn
	}

	vaults, err := models.FetchVaultsByOwner(ownerUID)
	if err != nil {
		return nil, fmt.Errorf("Statistics: %v", err)
	}

	stats := &Statistics{TotalVaults: len(vaults)}
	for _, vault := range vaults {
		if vault.SubmitDate > stats.LastUpload {
			stats.LastUpload = vault.SubmitDate
		}

		for _, file := range vault.Files {
			stats.TotalFiles++
			switch file.Type {
			case models.PHOTO:
				stats.PhotoCount++
			case models.VIDEO:
				stats.VideoCount++
			case models.AUDIO:
				stats.AudioCount++
			case models.DOCUMENT:
				stats.DocumentCount++
			}
		}
	}

	return stats, nil
}

package models

// RecentFile tracks the user's most recently uploaded evidence for
// quick access on the dashboard.
type RecentFile struct {
	BaseModel
	OwnerUID string   `json:"uid" gorm:"index;not null"`
	URL      string   `json:"url"`
	Name     string   `json:"name"`
	Type     FileType `json:"type"`
}

func RecordRecentFile(file *RecentFile) error {
	return db.Create(file).Error
}

func FetchRecentFiles(ownerUID string, limit int) ([]RecentFile, error) {
	if limit <= 0 {
		limit = 20
	}

	files := []RecentFile{}
	err := db.Where("owner_uid = ?", ownerUID).Order("id desc").Limit(limit).Find(&files).Error
	if err != nil {
		return nil, err
	}

	return files, nil
}

func DeleteRecentFileByURL(ownerUID, url string) error {
	return db.Where("owner_uid = ? AND url = ?", ownerUID, url).Delete(&RecentFile{}).Error
}

func DeleteRecentFilesByOwner(ownerUID string) error {
	return db.Where("owner_uid = ?", ownerUID).Delete(&RecentFile{}).Error
}

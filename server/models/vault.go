package models

import (
	"errors"

	"gorm.io/gorm"
)

type FileType string

const (
	PHOTO    FileType = "PHOTO"
	VIDEO    FileType = "VIDEO"
	AUDIO    FileType = "AUDIO"
	DOCUMENT FileType = "DOCUMENT"
)

// Vault is the per-user collection of uploaded evidence file
// references. The app keeps a single active vault per user and
// appends every new upload batch to it.
type Vault struct {
	VaultID    string      `json:"vault_id" gorm:"primaryKey"`
	OwnerUID   string      `json:"uid" gorm:"index;not null"`
	SubmitDate int64       `json:"submit_date"`
	Files      []VaultFile `json:"files" gorm:"foreignKey:VaultRef;references:VaultID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// VaultFile is an immutable reference to one uploaded object,
// identified by locator equality. Row insertion order is upload order.
type VaultFile struct {
	BaseModel
	VaultRef string   `json:"-" gorm:"index;not null"`
	URL      string   `json:"url"`
	Type     FileType `json:"type"`
}

func CreateVault(vault *Vault) error {
	return db.Create(vault).Error
}

// FindVaultByOwner returns the user's active vault with its files in
// upload order, or gorm.ErrRecordNotFound if the user has none.
func FindVaultByOwner(ownerUID string) (*Vault, error) {
	vault := Vault{}
	err := db.Preload("Files", filesInUploadOrder).First(&vault, "owner_uid = ?", ownerUID).Error
	if err != nil {
		return nil, err
	}

	return &vault, nil
}

// FetchVaultsByOwner returns every vault for the user, most recently
// submitted first. Accounts migrated from the one-vault-per-batch
// era may still hold more than one.
func FetchVaultsByOwner(ownerUID string) ([]Vault, error) {
	vaults := []Vault{}
	err := db.Preload("Files", filesInUploadOrder).
		Where("owner_uid = ?", ownerUID).
		Order("submit_date desc").
		Find(&vaults).Error
	if err != nil {
		return nil, err
	}

	return vaults, nil
}

// AppendFiles adds 'files' to the vault and bumps its submit date,
// as one serialized write.
func (vault *Vault) AppendFiles(files []VaultFile, submitDate int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i := range files {
			files[i].VaultRef = vault.VaultID
		}

		if err := tx.Create(&files).Error; err != nil {
			return err
		}

		return tx.Model(&Vault{}).Where("vault_id = ?", vault.VaultID).
			Update("submit_date", submitDate).Error
	})
}

// RemoveFileByURL deletes every file row in the vault matching 'url'.
// If the removal empties the vault, the vault row itself is deleted.
func (vault *Vault) RemoveFileByURL(url string) (removed bool, emptied bool, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("vault_ref = ? AND url = ?", vault.VaultID, url).Delete(&VaultFile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true

		var remaining int64
		if err := tx.Model(&VaultFile{}).Where("vault_ref = ?", vault.VaultID).Count(&remaining).Error; err != nil {
			return err
		}

		if remaining == 0 {
			emptied = true
			return tx.Delete(&Vault{VaultID: vault.VaultID}).Error
		}

		return nil
	})

	return removed, emptied, err
}

func DeleteVaultsByOwner(ownerUID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		vaults := []Vault{}
		err := tx.Where("owner_uid = ?", ownerUID).Find(&vaults).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		for _, vault := range vaults {
			if err := tx.Where("vault_ref = ?", vault.VaultID).Delete(&VaultFile{}).Error; err != nil {
				return err
			}
		}

		return tx.Where("owner_uid = ?", ownerUID).Delete(&Vault{}).Error
	})
}

func filesInUploadOrder(db *gorm.DB) *gorm.DB {
	return db.Order("vault_files.id asc")
}

package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sheguard/sheguard/server/gstorage"
	"github.com/sheguard/sheguard/server/models"
)

// DeleteFile removes a single file from the user's vault: the blob in
// object storage first, then the vault document entry. A blob that is
// already gone is fine - the document entry is removed regardless, so
// a retried delete converges instead of erroring forever. A vault left
// with no files is deleted outright.
func (s *Service) DeleteFile(ctx context.Context, ownerUID string, file models.VaultFile) error {
	if ownerUID == "" {
		return ErrNoUserSignedIn
	}
	if !gstorage.ValidLocator(file.URL) {
		return ErrInvalidLocator
	}

	s.deleteBlob(ctx, file.URL)

	lock := s.ownerLock(ownerUID)
	lock.Lock()
	defer lock.Unlock()

	vaults, err := models.FetchVaultsByOwner(ownerUID)
	if err != nil {
		return fmt.Errorf("DeleteFile: %v", err)
	}

	for _, vault := range vaults {
		removed, emptied, err := vault.RemoveFileByURL(file.URL)
		if err != nil {
			return fmt.Errorf("DeleteFile: %v", err)
		}

		if removed {
			if emptied {
				logg.Infof("vault %v is empty after delete, removed it", vault.VaultID)
			}

			// The recent-uploads list must not keep serving the
			// deleted locator
			if err := models.DeleteRecentFileByURL(ownerUID, file.URL); err != nil {
				logg.Warnf("could not remove recent-file entry for %v: %v", file.URL, err)
			}

			return nil
		}
	}

	return ErrFileNotFound
}

// DownloadFile streams the blob behind 'locator' into 'w'. The
// locator must resolve to a key under the user's own storage prefix;
// anything else - placeholder values, other buckets, other users'
// files - is reported as invalid or not found, never fetched.
func (s *Service) DownloadFile(ctx context.Context, ownerUID, locator string, w io.Writer) error {
	if ownerUID == "" {
		return ErrNoUserSignedIn
	}
	if !gstorage.ValidLocator(locator) {
		return ErrInvalidLocator
	}

	key, err := s.storage.KeyFromLocator(locator)
	if err != nil {
		return ErrInvalidLocator
	}

	if !strings.HasPrefix(key, userStoragePrefix(ownerUID)) {
		return ErrFileNotFound
	}

	if err := s.storage.Download(ctx, key, w); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("DownloadFile: %v", err)
	}

	return nil
}

// DeleteUserData cascades a user's stored data: every document
// collection keyed by the owner uid, then every object under the
// user's storage prefix. The caller removes the identity separately,
// so a storage failure here leaves the account intact and reportable
// as "data deleted but account not removed" (or the inverse).
func (s *Service) DeleteUserData(ctx context.Context, ownerUID string) error {
	if ownerUID == "" {
		return ErrNoUserSignedIn
	}

	lock := s.ownerLock(ownerUID)
	lock.Lock()
	defer lock.Unlock()

	collectionErrs := []error{}
	for _, deleteFn := range []struct {
		name string
		fn   func(string) error
	}{
		{"panic events", models.DeletePanicEventsByOwner},
		{"recent files", models.DeleteRecentFilesByOwner},
		{"tracking sessions", models.DeleteTrackingSessionsByOwner},
		{"vaults", models.DeleteVaultsByOwner},
	} {
		if err := deleteFn.fn(ownerUID); err != nil {
			logg.Errorf("failed to delete %v for user %v: %v", deleteFn.name, ownerUID, err)
			collectionErrs = append(collectionErrs, err)
		}
	}

	if err := s.deleteUserStorage(ctx, ownerUID); err != nil {
		collectionErrs = append(collectionErrs, err)
	}

	if len(collectionErrs) > 0 {
		return fmt.Errorf("DeleteUserData: %v", collectionErrs[0])
	}

	logg.Infof("deleted all stored data for user %v", ownerUID)

	return nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// deleteBlob is best-effort: a locator we can't map to a key or a
// blob that no longer exists must not block removal of the vault
// entry that points at it.
func (s *Service) deleteBlob(ctx context.Context, locator string) {
	key, err := s.storage.KeyFromLocator(locator)
	if err != nil {
		logg.Warnf("could not resolve storage key for %v: %v", locator, err)
		return
	}

	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Warnf("could not delete blob %v: %v", key, err)
	}
}

func (s *Service) deleteUserStorage(ctx context.Context, ownerUID string) error {
	keys, err := s.storage.List(ctx, userStoragePrefix(ownerUID))
	if err != nil {
		return fmt.Errorf("list user storage: %v", err)
	}

	failed := 0
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
			logg.Errorf("failed to delete blob %v: %v", key, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("delete user storage: %v of %v blobs failed", failed, len(keys))
	}

	return nil
}

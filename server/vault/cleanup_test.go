package vault

import (
	"bytes"
	"context"
	"testing"

	"github.com/sheguard/sheguard/server/models"
	"github.com/stretchr/testify/assert"
)

func uploadTestBatch(t *testing.T, service *Service, owner string, batch UploadBatch) *models.Vault {
	t.Helper()

	uploaded, err := service.UploadVault(context.Background(), owner, batch)
	assert.Nil(t, err)

	return uploaded
}

func TestDeleteFile(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")},
	})

	err := service.DeleteFile(context.Background(), "1", uploaded.Files[0])
	assert.Nil(t, err)
	assert.Equal(t, 1, storage.count())

	remaining, err := models.FindVaultByOwner("1")
	assert.Nil(t, err)
	assert.Len(t, remaining.Files, 1)
	assert.Equal(t, uploaded.Files[1].URL, remaining.Files[0].URL)
}

func TestDeleteFileRemovesRecentFileEntry(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")},
	})

	err := service.DeleteFile(context.Background(), "1", uploaded.Files[0])
	assert.Nil(t, err)

	// The deleted locator must be gone from the recent-uploads list
	recent, err := models.FetchRecentFiles("1", 0)
	assert.Nil(t, err)
	assert.Len(t, recent, 1)
	assert.Equal(t, uploaded.Files[1].URL, recent[0].URL)
}

func TestDeleteFileRejectsInvalidLocator(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	err := service.DeleteFile(context.Background(), "1", models.VaultFile{URL: "not-a-url"})
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestDeleteFileNotInVault(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	uploadTestBatch(t, service, "1", UploadBatch{Photos: []FileRef{ref("a.jpg", "image/jpeg")}})

	err := service.DeleteFile(context.Background(), "1", models.VaultFile{URL: fakeBaseURL + "vault/1/unknown"})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteFileToleratesMissingBlob(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")},
	})

	// The blob vanished out-of-band; the vault entry must still go
	key, err := storage.KeyFromLocator(uploaded.Files[0].URL)
	assert.Nil(t, err)
	assert.Nil(t, storage.Delete(context.Background(), key))

	err = service.DeleteFile(context.Background(), "1", uploaded.Files[0])
	assert.Nil(t, err)

	remaining, err := models.FindVaultByOwner("1")
	assert.Nil(t, err)
	assert.Len(t, remaining.Files, 1)
}

func TestDeleteLastFileRemovesVault(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Audios: []FileRef{ref("only.m4a", "audio/mp4")},
	})

	err := service.DeleteFile(context.Background(), "1", uploaded.Files[0])
	assert.Nil(t, err)

	_, err = models.FindVaultByOwner("1")
	assert.NotNil(t, err, "emptied vault should be deleted outright")
}

func TestDownloadFile(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Audios: []FileRef{ref("evidence.m4a", "audio/mp4")},
	})

	var buf bytes.Buffer
	err := service.DownloadFile(context.Background(), "1", uploaded.Files[0].URL, &buf)
	assert.Nil(t, err)
	assert.Contains(t, buf.String(), "evidence.m4a")
}

func TestDownloadFileRejectsOtherUsersFiles(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploaded := uploadTestBatch(t, service, "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg")},
	})

	var buf bytes.Buffer
	err := service.DownloadFile(context.Background(), "2", uploaded.Files[0].URL, &buf)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Zero(t, buf.Len())
}

func TestDownloadFileRejectsPlaceholderLocator(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	var buf bytes.Buffer
	err := service.DownloadFile(context.Background(), "1", models.RECORDING_IN_PROGRESS, &buf)
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestDeleteUserData(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploadTestBatch(t, service, "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg")},
		Audios: []FileRef{ref("b.m4a", "audio/mp4")},
	})
	// A second user's data must survive the cascade
	uploadTestBatch(t, service, "2", UploadBatch{Photos: []FileRef{ref("c.jpg", "image/jpeg")}})

	assert.Nil(t, models.CreatePanicEvent(&models.PanicEvent{EventID: "evt-1", OwnerUID: "1", EventDate: 1}))
	assert.Nil(t, models.CreateTrackingSession(&models.TrackingSession{SessionID: "sess-1", OwnerUID: "1"}))

	err := service.DeleteUserData(context.Background(), "1")
	assert.Nil(t, err)

	_, err = models.FindVaultByOwner("1")
	assert.NotNil(t, err)

	events, _, err := models.FetchPanicEvents("1", 1)
	assert.Nil(t, err)
	assert.Empty(t, events)

	recent, err := models.FetchRecentFiles("1", 0)
	assert.Nil(t, err)
	assert.Empty(t, recent)

	keys, err := storage.List(context.Background(), "vault/1/")
	assert.Nil(t, err)
	assert.Empty(t, keys, "all of the user's blobs should be gone")

	// Untouched: the other user's vault & blob
	otherVault, err := models.FindVaultByOwner("2")
	assert.Nil(t, err)
	assert.Len(t, otherVault.Files, 1)
}

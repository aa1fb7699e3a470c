package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/server/models"
	"gorm.io/gorm"
)

var (
	ErrNoUserSignedIn   = errors.New("no user signed in")
	ErrNoFilesToUpload  = errors.New("no files to upload")
	ErrAllUploadsFailed = errors.New("failed to upload any files")
	ErrInvalidLocator   = errors.New("invalid file locator")
	ErrFileNotFound     = errors.New("file not found in vault")
)

var logg = logger.NewLogger()

// ObjectStorage is the blob-store collaborator the pipeline uploads
// into. Satisfied by gstorage.GStorage.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Download(ctx context.Context, key string, w io.Writer) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	KeyFromLocator(locator string) (string, error)
}

// FileRef is one caller-supplied file to upload.
type FileRef struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// LocalFileRef wraps a file on local disk as a FileRef.
func LocalFileRef(path string) FileRef {
	return FileRef{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// UploadBatch carries the caller-bucketed files of one upload call.
type UploadBatch struct {
	Photos    []FileRef
	Videos    []FileRef
	Audios    []FileRef
	Documents []FileRef
}

func (b UploadBatch) Empty() bool {
	return len(b.Photos) == 0 && len(b.Videos) == 0 && len(b.Audios) == 0 && len(b.Documents) == 0
}

// Service is the vault upload pipeline and cleanup/cascade service.
// Reconciliation against the vault document is serialized per owner
// to keep concurrent uploads from clobbering each other's files.
type Service struct {
	storage    ObjectStorage
	ownerLocks sync.Map // ownerUID -> *sync.Mutex
}

func NewService(storage ObjectStorage) *Service {
	return &Service{storage: storage}
}

// UploadVault uploads every file in 'batch' to object storage and
// reconciles the successful ones into the user's vault. Per-file
// failures are skipped - partial success is a normal outcome. Only a
// batch where every file failed is an error, and no vault document is
// written for it.
func (s *Service) UploadVault(ctx context.Context, ownerUID string, batch UploadBatch) (*models.Vault, error) {
	if ownerUID == "" {
		return nil, ErrNoUserSignedIn
	}
	if batch.Empty() {
		return nil, ErrNoFilesToUpload
	}

	vaultID := uuid.NewString()
	timestamp := time.Now().UnixMilli()

	// Bucket uploads run concurrently; the merged file list keeps the
	// fixed photos/videos/audios/documents order.
	buckets := []struct {
		name     string
		files    []FileRef
		fileType models.FileType
	}{
		{"photos", batch.Photos, models.PHOTO},
		{"videos", batch.Videos, models.VIDEO},
		{"audios", batch.Audios, models.AUDIO},
		{"documents", batch.Documents, models.DOCUMENT},
	}

	results := make([][]models.VaultFile, len(buckets))
	var wg sync.WaitGroup
	for i, bucket := range buckets {
		if len(bucket.files) == 0 {
			continue
		}

		wg.Add(1)
		go func(i int, name string, files []FileRef, fileType models.FileType) {
			defer wg.Done()
			results[i] = s.uploadBucket(ctx, ownerUID, vaultID, name, files, fileType)
		}(i, bucket.name, bucket.files, bucket.fileType)
	}
	wg.Wait()

	allFiles := []models.VaultFile{}
	for _, bucketFiles := range results {
		allFiles = append(allFiles, bucketFiles...)
	}

	if len(allFiles) == 0 {
		return nil, ErrAllUploadsFailed
	}

	vault, err := s.reconcile(ownerUID, vaultID, allFiles, timestamp)
	if err != nil {
		return nil, fmt.Errorf("UploadVault: %v", err)
	}

	s.recordRecentFiles(ownerUID, allFiles)

	return vault, nil
}

// UploadFiles is the legacy single-list entrypoint: files are
// classified by their content type, with unknown types stored as
// documents.
func (s *Service) UploadFiles(ctx context.Context, ownerUID string, files []FileRef) (*models.Vault, error) {
	batch := UploadBatch{}
	for _, file := range files {
		switch ClassifyContentType(file.ContentType) {
		case models.PHOTO:
			batch.Photos = append(batch.Photos, file)
		case models.VIDEO:
			batch.Videos = append(batch.Videos, file)
		case models.AUDIO:
			batch.Audios = append(batch.Audios, file)
		default:
			batch.Documents = append(batch.Documents, file)
		}
	}

	return s.UploadVault(ctx, ownerUID, batch)
}

// UploadLocalEvidence uploads a single recording artifact from local
// disk and removes the artifact once it's safely in the vault.
func (s *Service) UploadLocalEvidence(ctx context.Context, ownerUID, path string, fileType models.FileType) (*models.Vault, error) {
	batch := UploadBatch{}
	ref := LocalFileRef(path)

	switch fileType {
	case models.VIDEO:
		batch.Videos = []FileRef{ref}
	default:
		batch.Audios = []FileRef{ref}
	}

	vault, err := s.UploadVault(ctx, ownerUID, batch)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil {
		logg.Warnf("could not remove local evidence artifact %v: %v", path, err)
	}

	return vault, nil
}

// ClassifyContentType maps a content-type string to a vault file
// type; unknown types fall back to DOCUMENT.
func ClassifyContentType(contentType string) models.FileType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.PHOTO
	case strings.HasPrefix(contentType, "video/"):
		return models.VIDEO
	case strings.HasPrefix(contentType, "audio/"):
		return models.AUDIO
	default:
		return models.DOCUMENT
	}
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (s *Service) uploadBucket(ctx context.Context, ownerUID, vaultID, bucket string, files []FileRef, fileType models.FileType) []models.VaultFile {
	uploaded := []models.VaultFile{}

	for i, file := range files {
		locator, err := s.uploadOne(ctx, ownerUID, vaultID, bucket, i, file)
		if err != nil {
			// The batch continues without the failed file
			logg.Errorf("failed to upload %v file %v/%v: %v", bucket, i+1, len(files), err)
			continue
		}

		uploaded = append(uploaded, models.VaultFile{URL: locator, Type: fileType})
	}

	logg.Infof("upload summary for %v: %v/%v files successful", bucket, len(uploaded), len(files))

	return uploaded
}

func (s *Service) uploadOne(ctx context.Context, ownerUID, vaultID, bucket string, index int, file FileRef) (string, error) {
	r, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %v: %v", file.Name, err)
	}
	defer r.Close()

	key := storageKey(ownerUID, vaultID, bucket, index, file.Name)
	locator, err := s.storage.Upload(ctx, key, r)
	if err != nil {
		return "", fmt.Errorf("upload %v: %v", file.Name, err)
	}

	return locator, nil
}

// reconcile merges the uploaded files into the user's single active
// vault, creating it if this is the user's first upload. The
// read-modify-write runs under the per-owner lock so two racing
// upload calls can't create duplicate vaults or lose files.
func (s *Service) reconcile(ownerUID, vaultID string, files []models.VaultFile, timestamp int64) (*models.Vault, error) {
	lock := s.ownerLock(ownerUID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := models.FindVaultByOwner(ownerUID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing != nil {
		if err := existing.AppendFiles(files, timestamp); err != nil {
			return nil, err
		}
		logg.Infof("added %v files to existing vault %v", len(files), existing.VaultID)

		return models.FindVaultByOwner(ownerUID)
	}

	newVault := &models.Vault{
		VaultID:    vaultID,
		OwnerUID:   ownerUID,
		SubmitDate: timestamp,
		Files:      files,
	}
	if err := models.CreateVault(newVault); err != nil {
		return nil, err
	}
	logg.Infof("created new vault %v with %v files", vaultID, len(files))

	return newVault, nil
}

func (s *Service) recordRecentFiles(ownerUID string, files []models.VaultFile) {
	for _, file := range files {
		err := models.RecordRecentFile(&models.RecentFile{
			OwnerUID: ownerUID,
			URL:      file.URL,
			Name:     filepath.Base(file.URL),
			Type:     file.Type,
		})
		if err != nil {
			logg.Warnf("could not record recent file %v: %v", file.URL, err)
		}
	}
}

func (s *Service) ownerLock(ownerUID string) *sync.Mutex {
	lock, _ := s.ownerLocks.LoadOrStore(ownerUID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func storageKey(ownerUID, vaultID, bucket string, index int, name string) string {
	return fmt.Sprintf("vault/%v/%v/%v/%v_%v_%v%v",
		ownerUID, vaultID, bucket, time.Now().UnixMilli(), index, uuid.NewString(), filepath.Ext(name))
}

func userStoragePrefix(ownerUID string) string {
	return fmt.Sprintf("vault/%v/", ownerUID)
}

package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sheguard/sheguard/server/gstorage"
	"github.com/sheguard/sheguard/server/models"
	"github.com/stretchr/testify/assert"
)

const fakeBaseURL = "https://storage.googleapis.com/test-bucket/"

// fakeStorage is an in-memory ObjectStorage. Files whose name appears
// in failNames fail to upload.
type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failNames map[string]bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects:   make(map[string][]byte),
		failNames: make(map[string]bool),
	}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name := range s.failNames {
		if strings.Contains(string(content), name) {
			return "", errors.New("upload failed")
		}
	}

	s.objects[key] = content

	return fakeBaseURL + key, nil
}

func (s *fakeStorage) Download(ctx context.Context, key string, w io.Writer) error {
	s.mu.Lock()
	content, ok := s.objects[key]
	s.mu.Unlock()

	if !ok {
		return gstorage.ErrObjectNotExist
	}

	_, err := w.Write(content)

	return err
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return gstorage.ErrObjectNotExist
	}
	delete(s.objects, key)

	return nil
}

func (s *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{}
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (s *fakeStorage) KeyFromLocator(locator string) (string, error) {
	if !strings.HasPrefix(locator, fakeBaseURL) {
		return "", fmt.Errorf("locator %v is not in bucket", locator)
	}

	return strings.TrimPrefix(locator, fakeBaseURL), nil
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}

func ref(name string, contentType string) FileRef {
	return FileRef{
		Name:        name,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(name))), nil
		},
	}
}

func TestUploadVault(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	service := NewService(storage)

	uploaded, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Photos: []FileRef{ref("beach.jpg", "image/jpeg"), ref("park.jpg", "image/jpeg")},
		Audios: []FileRef{ref("note.m4a", "audio/mp4")},
	})
	assert.Nil(t, err)
	assert.Len(t, uploaded.Files, 3)
	assert.Equal(t, 3, storage.count())

	// Files land in upload order: photos first, then audios
	assert.Equal(t, models.PHOTO, uploaded.Files[0].Type)
	assert.Equal(t, models.PHOTO, uploaded.Files[1].Type)
	assert.Equal(t, models.AUDIO, uploaded.Files[2].Type)

	for _, file := range uploaded.Files {
		assert.True(t, strings.HasPrefix(file.URL, "https://"), "locator must be a https url")
		assert.Contains(t, file.URL, "vault/1/")
	}

	recent, err := models.FetchRecentFiles("1", 0)
	assert.Nil(t, err)
	assert.Len(t, recent, 3)
}

func TestUploadVaultAppendsToExistingVault(t *testing.T) {
	models.InitializeTestDb()

	service := NewService(newFakeStorage())

	first, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Photos: []FileRef{ref("one.jpg", "image/jpeg")},
	})
	assert.Nil(t, err)

	second, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Videos: []FileRef{ref("two.mp4", "video/mp4")},
	})
	assert.Nil(t, err)

	// Still a single vault per user, now holding both batches
	assert.Equal(t, first.VaultID, second.VaultID)
	assert.Len(t, second.Files, 2)

	vaults, err := models.FetchVaultsByOwner("1")
	assert.Nil(t, err)
	assert.Len(t, vaults, 1)
}

func TestConcurrentUploadsReconcileIntoSingleVault(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	batches := []UploadBatch{
		{Photos: []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")}},
		{Audios: []FileRef{ref("c.m4a", "audio/mp4"), ref("d.m4a", "audio/mp4")}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.UploadVault(context.Background(), "1", batches[i])
		}(i)
	}
	wg.Wait()

	assert.Nil(t, errs[0])
	assert.Nil(t, errs[1])

	// Racing uploads must neither create duplicate vaults nor lose
	// each other's files
	vaults, err := models.FetchVaultsByOwner("1")
	assert.Nil(t, err)
	assert.Len(t, vaults, 1)
	assert.Len(t, vaults[0].Files, 4)
}

func TestUploadVaultSkipsFailedFiles(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	storage.failNames["corrupt.jpg"] = true
	service := NewService(storage)

	uploaded, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Photos: []FileRef{ref("corrupt.jpg", "image/jpeg"), ref("fine.jpg", "image/jpeg")},
	})
	assert.Nil(t, err, "partial success is not an error")
	assert.Len(t, uploaded.Files, 1)
}

func TestUploadVaultAllFilesFailed(t *testing.T) {
	models.InitializeTestDb()

	storage := newFakeStorage()
	storage.failNames["a.jpg"] = true
	storage.failNames["b.jpg"] = true
	service := NewService(storage)

	_, err := service.UploadVault(context.Background(), "1", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg"), ref("b.jpg", "image/jpeg")},
	})
	assert.ErrorIs(t, err, ErrAllUploadsFailed)

	// No vault document is written for a fully-failed batch
	_, err = models.FindVaultByOwner("1")
	assert.NotNil(t, err)
}

func TestUploadVaultRejectsEmptyAndUnauthenticated(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	_, err := service.UploadVault(context.Background(), "1", UploadBatch{})
	assert.ErrorIs(t, err, ErrNoFilesToUpload)

	_, err = service.UploadVault(context.Background(), "", UploadBatch{
		Photos: []FileRef{ref("a.jpg", "image/jpeg")},
	})
	assert.ErrorIs(t, err, ErrNoUserSignedIn)
}

func TestUploadFilesClassifiesByContentType(t *testing.T) {
	models.InitializeTestDb()
	service := NewService(newFakeStorage())

	uploaded, err := service.UploadFiles(context.Background(), "1", []FileRef{
		ref("pic.jpg", "image/jpeg"),
		ref("clip.mp4", "video/mp4"),
		ref("note.m4a", "audio/mp4"),
		ref("report.pdf", "application/pdf"),
		ref("mystery.bin", ""),
	})
	assert.Nil(t, err)
	assert.Len(t, uploaded.Files, 5)

	counts := map[models.FileType]int{}
	for _, file := range uploaded.Files {
		counts[file.Type]++
	}
	assert.Equal(t, 1, counts[models.PHOTO])
	assert.Equal(t, 1, counts[models.VIDEO])
	assert.Equal(t, 1, counts[models.AUDIO])
	assert.Equal(t, 2, counts[models.DOCUMENT], "unknown types are stored as documents")
}

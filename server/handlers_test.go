package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sheguard/sheguard/server/auth"
	"github.com/sheguard/sheguard/server/models"
	"github.com/sheguard/sheguard/server/vault"
	"github.com/stretchr/testify/assert"
)

const testStorageBaseURL = "https://storage.googleapis.com/sheguard-test/"

// testStorage is an in-memory ObjectStorage whose reads can be made
// to fail part-way through.
type testStorage struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failMidRead bool
}

func newTestStorage() *testStorage {
	return &testStorage{objects: make(map[string][]byte)}
}

func (s *testStorage) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = content

	return testStorageBaseURL + key, nil
}

func (s *testStorage) Download(ctx context.Context, key string, w io.Writer) error {
	s.mu.Lock()
	content, ok := s.objects[key]
	failMidRead := s.failMidRead
	s.mu.Unlock()

	if !ok {
		return errors.New("object does not exist")
	}

	if failMidRead {
		w.Write(content[:len(content)/2])
		return errors.New("storage read interrupted")
	}

	_, err := w.Write(content)

	return err
}

func (s *testStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)

	return nil
}

func (s *testStorage) List(ctx context.Context, prefix string) ([]string, error) {
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

func (s *testStorage) KeyFromLocator(locator string) (string, error) {
	if !strings.HasPrefix(locator, testStorageBaseURL) {
		return "", errors.New("locator is not in test bucket")
	}

	return strings.TrimPrefix(locator, testStorageBaseURL), nil
}

func audioRef(name string) vault.FileRef {
	return vault.FileRef{
		Name:        name,
		ContentType: "audio/mp4",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte("audio-bytes-" + name))), nil
		},
	}
}

//---------------------------------------------------------------------------------//
// Account handler tests
//--------------------------------------------------------------------------------//

func TestSignUp(t *testing.T) {
	models.InitializeTestDb()

	body := `{
		"first_name": "jessica",
		"last_name": "pearson",
		"phone_number": "+14165550000",
		"email": "jessica@pearson.com",
		"password": "firm-first"
	}`
	rw := httptest.NewRecorder()

	signUp(rw, httptest.NewRequest("POST", "/signup", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rw.Code)

	user, err := models.FindUserBy("email", "jessica@pearson.com")
	assert.Nil(t, err)
	assert.Equal(t, "jessica", user.FirstName)

	passwordHash, err := models.FindUserPassword("jessica@pearson.com")
	assert.Nil(t, err)
	assert.NotEqual(t, "firm-first", passwordHash, "stored password should be hashed")
	assert.True(t, auth.CheckPasswordHash("firm-first", passwordHash))
}

func TestSignUpRejectsPasswordWithSpaces(t *testing.T) {
	models.InitializeTestDb()

	body := `{
		"first_name": "katrina",
		"last_name": "bennett",
		"phone_number": "+14165550001",
		"email": "katrina@pearson.com",
		"password": "has spaces"
	}`
	rw := httptest.NewRecorder()

	signUp(rw, httptest.NewRequest("POST", "/signup", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	_, err := models.FindUserBy("email", "katrina@pearson.com")
	assert.NotNil(t, err)
}

//---------------------------------------------------------------------------------//
// Vault handler tests
//--------------------------------------------------------------------------------//

func createDownloadFixture(t *testing.T, storage *testStorage) (*models.User, string) {
	t.Helper()

	user := &models.User{
		FirstName:   "rachel",
		LastName:    "zane",
		Email:       "rachel@pearson.com",
		Password:    "very-secure",
		PhoneNumber: "+14165550002",
	}
	assert.Nil(t, models.CreateUser(user))

	uploaded, err := vaultService.UploadVault(context.Background(), user.UID(), vault.UploadBatch{
		Audios: []vault.FileRef{audioRef("evidence.m4a")},
	})
	assert.Nil(t, err)

	return user, uploaded.Files[0].URL
}

func downloadRequest(user *models.User, locator string) *http.Request {
	req := httptest.NewRequest("GET", "/users/"+user.UID()+"/vault/files/download?url="+url.QueryEscape(locator), nil)

	return mux.SetURLVars(req, map[string]string{"uid": user.UID()})
}

func TestDownloadVaultFile(t *testing.T) {
	models.InitializeTestDb()

	storage := newTestStorage()
	vaultService = vault.NewService(storage)
	user, locator := createDownloadFixture(t, storage)

	rw := httptest.NewRecorder()
	downloadVaultFile(rw, downloadRequest(user, locator))

	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "application/octet-stream", rw.Header().Get("Content-Type"))
	assert.Equal(t, "audio-bytes-evidence.m4a", rw.Body.String())
}

func TestDownloadVaultFileMidStreamFailure(t *testing.T) {
	models.InitializeTestDb()

	storage := newTestStorage()
	vaultService = vault.NewService(storage)
	user, locator := createDownloadFixture(t, storage)

	storage.mu.Lock()
	storage.failMidRead = true
	storage.mu.Unlock()

	rw := httptest.NewRecorder()
	downloadVaultFile(rw, downloadRequest(user, locator))

	assert.Equal(t, http.StatusInternalServerError, rw.Code)

	// The body must be a clean JSON error, with no partial binary
	// content in front of it
	payload := ResponsePayload{}
	assert.Nil(t, json.Unmarshal(rw.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload.Errors)
}

func TestDownloadVaultFileRejectsInvalidLocator(t *testing.T) {
	models.InitializeTestDb()

	storage := newTestStorage()
	vaultService = vault.NewService(storage)
	user, _ := createDownloadFixture(t, storage)

	rw := httptest.NewRecorder()
	downloadVaultFile(rw, downloadRequest(user, models.RECORDING_IN_PROGRESS))

	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

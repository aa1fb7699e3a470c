package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/mux"
	"github.com/sheguard/sheguard/server/auth"
	"github.com/sheguard/sheguard/server/auth/key"
	"github.com/sheguard/sheguard/server/models"
	"github.com/sheguard/sheguard/server/tracking"
	"github.com/sheguard/sheguard/server/vault"
	"gorm.io/gorm"
)

const (
	maxUploadBytes         = 256 << 20 // 256MB
	defaultTrackingMinutes = 60
)

type ResponsePayload struct {
	Errors  []string    `json:"errors,omitempty"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type RequestContextKey string

type DecodedJWT struct {
	Claims   *auth.SheGuardTokenClaims
	ErrorMsg string
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("phone_number", func(fl validator.FieldLevel) bool {
		return isValidPhoneNumber(fl.Field().String())
	})
	_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		// if whitespace in password return false
		err := validate.Var(fl.Field().String(), "contains= ")
		if err == nil {
			return false
		}
		return len(fl.Field().String()) > 0
	})
}

// ---------------------------------------------------------------------------------//
// Account handlers
// --------------------------------------------------------------------------------//

func signUp(rw http.ResponseWriter, r *http.Request) {
	data := models.User{}
	decoder := json.NewDecoder(r.Body)

	err := decoder.Decode(&data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	errs := validate.Struct(data)
	if errs != nil {
		writeResponse(rw, ResponsePayload{Errors: strings.Split(errs.Error(), "\n")}, http.StatusBadRequest)
		return
	}

	err = models.CreateUser(&data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

func logIn(rw http.ResponseWriter, r *http.Request) {
	data := make(map[string]string)
	decoder := json.NewDecoder(r.Body)
	decoder.Decode(&data)

	passwordHash, err := models.FindUserPassword(data["email"])
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if !auth.CheckPasswordHash(data["password"], passwordHash) {
		writeResponse(rw, ResponsePayload{Errors: []string{"email/password is invalid"}}, http.StatusUnauthorized)
		return
	}

	user, err := models.FindUserBy("email", data["email"])
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	token, err := auth.EncodeJWT(auth.SheGuardTokenClaims{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.UID(),
			ExpiresAt: time.Now().Add(24 * time.Hour).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}, authKeyPair)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: map[string]string{"token": token}})
}

func getJWKS(rw http.ResponseWriter, r *http.Request) {
	jwk, err := authKeyPair.JWK()
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(key.ExportJWKAsJWKS(jwk))
}

func healthCheck(rw http.ResponseWriter, r *http.Request) {
	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

func findUser(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: user})
}

func updateUser(rw http.ResponseWriter, r *http.Request) {
	var errs []string
	data := make(map[string]interface{})
	decoder := json.NewDecoder(r.Body)

	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	err := decoder.Decode(&data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	removeUnknownFields(data, map[string]bool{"first_name": true, "last_name": true, "phone_number": true, "password": true})
	if len(data) <= 0 {
		writeResponse(rw, ResponsePayload{Errors: []string{"valid fields required"}}, http.StatusBadRequest)
		return
	}

	if data["password"] != nil && strings.TrimSpace(fmt.Sprintf("%v", data["password"])) == "" {
		errs = append(errs, "password cannot be empty")
	}

	if data["phone_number"] != nil && !isValidPhoneNumber(fmt.Sprintf("%v", data["phone_number"])) {
		errs = append(errs, "phone number is invalid")
	}

	if len(errs) > 0 {
		writeResponse(rw, ResponsePayload{Errors: errs}, http.StatusBadRequest)
		return
	}

	err = user.Update(data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// deleteUserData cascades the user's stored data & then removes the
// account itself. The two outcomes are reported separately: a data
// failure keeps the account; an account failure after a clean data
// wipe gets its own message so the client knows what's left.
func deleteUserData(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	trackingManager.StopSessionQuietly(user.UID())

	if err := vaultService.DeleteUserData(r.Context(), user.UID()); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if err := models.DeleteContactsForUser(user.ID); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if err := models.DeleteUser(user.ID); err != nil {
		writeResponse(rw,
			ResponsePayload{Errors: []string{"Data deleted but account not removed. Please contact support."}},
			http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// ---------------------------------------------------------------------------------//
// Contact handlers
// --------------------------------------------------------------------------------//

func createContact(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	contact := models.Contact{}
	err := json.NewDecoder(r.Body).Decode(&contact)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	errs := validate.Struct(contact)
	if errs != nil {
		writeResponse(rw, ResponsePayload{Errors: strings.Split(errs.Error(), "\n")}, http.StatusBadRequest)
		return
	}

	err = user.AddContact(&contact)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: contact})
}

func listContacts(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	if err := user.LoadContacts(); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: user.Contacts})
}

func updateContact(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	data := make(map[string]interface{})
	err := json.NewDecoder(r.Body).Decode(&data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	removeUnknownFields(data, map[string]bool{"name": true, "phone_number": true, "selected": true})
	if len(data) <= 0 {
		writeResponse(rw, ResponsePayload{Errors: []string{"valid fields required"}}, http.StatusBadRequest)
		return
	}

	if data["phone_number"] != nil && !isValidPhoneNumber(fmt.Sprintf("%v", data["phone_number"])) {
		writeResponse(rw, ResponsePayload{Errors: []string{"phone number is invalid"}}, http.StatusBadRequest)
		return
	}

	err = user.UpdateContact(vars["id"], data)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

func deleteContact(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	err := user.DeleteContact(vars["id"])
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// ---------------------------------------------------------------------------------//
// Panic handlers
// --------------------------------------------------------------------------------//

func triggerPanic(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	data := struct {
		IncludeRecording bool `json:"include_recording"`
	}{IncludeRecording: true}
	json.NewDecoder(r.Body).Decode(&data)

	panicOrchestrator.TriggerPanic(user.UID(), data.IncludeRecording)

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// recordKeyEvent feeds one hardware key press into the user's trigger
// detector; the threshold-crossing press fires the panic flow and is
// reported as consumed.
func recordKeyEvent(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	detector := detectorFor(user.UID())
	consumed := detector.HandleKeyEvent()

	json.NewEncoder(rw).Encode(ResponsePayload{
		Success: true,
		Data:    map[string]interface{}{"consumed": consumed, "count": detector.Count()},
	})
}

func listPanicEvents(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	events, paging, err := models.FetchPanicEvents(user.UID(), page)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{
		Success: true,
		Data:    map[string]interface{}{"events": events, "paging": paging},
	})
}

func stopRecording(rw http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(rw, r); !ok {
		return
	}

	if err := recordingController.StopRecording(); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// ---------------------------------------------------------------------------------//
// Vault handlers
// --------------------------------------------------------------------------------//

func uploadToVault(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	var updatedVault *models.Vault
	if legacy := r.MultipartForm.File["files"]; len(legacy) > 0 {
		updatedVault, err = vaultService.UploadFiles(r.Context(), user.UID(), fileRefsFromHeaders(legacy))
	} else {
		updatedVault, err = vaultService.UploadVault(r.Context(), user.UID(), vault.UploadBatch{
			Photos:    fileRefsFromHeaders(r.MultipartForm.File["photos"]),
			Videos:    fileRefsFromHeaders(r.MultipartForm.File["videos"]),
			Audios:    fileRefsFromHeaders(r.MultipartForm.File["audios"]),
			Documents: fileRefsFromHeaders(r.MultipartForm.File["documents"]),
		})
	}

	if errors.Is(err, vault.ErrNoFilesToUpload) || errors.Is(err, vault.ErrAllUploadsFailed) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: updatedVault})
}

func getVault(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	userVault, err := models.FindVaultByOwner(user.UID())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{"no vault found"}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: userVault})
}

func getVaultStats(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	stats, err := vaultService.Statistics(user.UID())
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: stats})
}

func deleteVaultFile(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	data := struct {
		URL string `json:"url"`
	}{}
	err := json.NewDecoder(r.Body).Decode(&data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	err = vaultService.DeleteFile(r.Context(), user.UID(), models.VaultFile{URL: data.URL})
	if errors.Is(err, vault.ErrInvalidLocator) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if errors.Is(err, vault.ErrFileNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

func downloadVaultFile(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	locator := r.URL.Query().Get("url")

	// Buffered so a storage failure mid-read surfaces as a clean JSON
	// error instead of truncating a binary response body.
	var buf bytes.Buffer
	err := vaultService.DownloadFile(r.Context(), user.UID(), locator, &buf)
	if errors.Is(err, vault.ErrInvalidLocator) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if errors.Is(err, vault.ErrFileNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(locator)))
	io.Copy(rw, &buf)
}

func listRecentFiles(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	files, err := models.FetchRecentFiles(user.UID(), limit)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: files})
}

// ---------------------------------------------------------------------------------//
// Tracking handlers
// --------------------------------------------------------------------------------//

func startTracking(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	data := struct {
		DurationMinutes int    `json:"duration_minutes"`
		Message         string `json:"message"`
	}{DurationMinutes: defaultTrackingMinutes}
	json.NewDecoder(r.Body).Decode(&data)

	sessionID, err := trackingManager.StartSession(user.ID, user.UID(), time.Duration(data.DurationMinutes)*time.Minute, data.Message)
	if errors.Is(err, tracking.ErrNoSelectedContacts) || errors.Is(err, tracking.ErrSessionAlreadyLive) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true, Data: map[string]string{"session_id": sessionID}})
}

func stopTracking(rw http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(rw, r)
	if !ok {
		return
	}

	err := trackingManager.StopSession(user.ID, user.UID())
	if errors.Is(err, tracking.ErrSessionNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(ResponsePayload{Success: true})
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func fileRefsFromHeaders(headers []*multipart.FileHeader) []vault.FileRef {
	refs := make([]vault.FileRef, 0, len(headers))
	for _, header := range headers {
		header := header
		refs = append(refs, vault.FileRef{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}

	return refs
}

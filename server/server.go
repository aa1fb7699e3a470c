package server

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sheguard/sheguard/server/auth/key"
	"github.com/sheguard/sheguard/server/emergency"
	"github.com/sheguard/sheguard/server/gstorage"
	"github.com/sheguard/sheguard/server/location"
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/server/models"
	"github.com/sheguard/sheguard/server/recording"
	"github.com/sheguard/sheguard/server/tracking"
	"github.com/sheguard/sheguard/server/twilio"
	"github.com/sheguard/sheguard/server/vault"
	"github.com/sheguard/sheguard/server/work"
	"github.com/sheguard/sheguard/shared"
)

const defaultMaxFixAge = 5 * time.Minute

var (
	logg = logger.NewLogger()

	serverConfig *shared.ServerConfig
	authKeyPair  *key.KeyPair

	workerPool          *work.WorkerPoolAdapter
	vaultService        *vault.Service
	trackingManager     *tracking.Manager
	panicOrchestrator   *emergency.Orchestrator
	recordingController *recording.Controller

	detectorsMu sync.Mutex
	detectors   = make(map[string]*emergency.TriggerDetector)
)

// Start wires up every service & runs the sheguard server until
// SIGINT/SIGTERM.
func Start(config *shared.ServerConfig, devMode bool) {
	var err error
	serverConfig = config

	authKeyPair, err = key.NewKeyPairFromRSAPrivateKeyPem(config.SheGuard.PrivateKeyPem)
	fatalOnError(err)

	fatalOnError(models.AutoMigrate(config.Sqlite.PassPhrase, configDirectory(devMode)))

	storage, err := gstorage.NewGStorage(config.Google.ApplicationCredentials, config.Google.Storage.Bucket)
	fatalOnError(err)

	messenger := twilio.NewClient(config.Twilio, devMode)

	locations := location.NewProvider(
		location.NoSource{},
		secondsOrDefault(config.Panic.LocationTimeoutSeconds, location.DefaultFetchTimeout),
		defaultMaxFixAge,
	)

	workerPool, err = work.NewWorkerAdapter(config.SheGuard.Cron.TimeZone)
	fatalOnError(err)

	vaultService = vault.NewService(storage)

	recordingController = recording.NewController(
		recording.NewCommandRecorder(config.Panic.RecordingCommand),
		workerPoolUploader{},
		recordingDirectory(config, devMode),
		secondsOrDefault(config.Panic.RecordingSeconds, recording.DefaultMaxDuration),
	)

	panicOrchestrator = emergency.NewOrchestrator(messenger, locations, recordingController)

	trackingManager = tracking.NewManager(
		messenger,
		locations,
		secondsOrDefault(config.Tracking.UpdateIntervalSeconds, tracking.DefaultUpdateInterval),
		secondsOrDefault(config.Tracking.SampleIntervalSeconds, tracking.DefaultSampleInterval),
		config.Tracking.MinDistanceMeters,
	)

	registerJobHandlers(workerPool)
	enqueueJobs(workerPool)
	fatalOnError(workerPool.Start())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", config.SheGuard.Listener.Port),
		Handler: newRouter(),
	}
	go serve(server)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	cleanup(server)
}

func newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware, initialContextMiddleware)

	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/jwks", getJWKS).Methods("GET")
	router.HandleFunc("/signup", signUp).Methods("POST")
	router.HandleFunc("/login", logIn).Methods("POST")

	protectedRouter := router.PathPrefix("/users/{uid:[0-9]+}").Subrouter()
	protectedRouter.Use(protectedRouteMiddleware)
	protectedRouter.HandleFunc("", findUser).Methods("GET")
	protectedRouter.HandleFunc("", updateUser).Methods("PUT")
	protectedRouter.HandleFunc("", deleteUserData).Methods("DELETE")

	protectedRouter.HandleFunc("/contacts", createContact).Methods("POST")
	protectedRouter.HandleFunc("/contacts", listContacts).Methods("GET")
	protectedRouter.HandleFunc("/contacts/{id:[0-9]+}", updateContact).Methods("PUT")
	protectedRouter.HandleFunc("/contacts/{id:[0-9]+}", deleteContact).Methods("DELETE")

	protectedRouter.HandleFunc("/panic", triggerPanic).Methods("POST")
	protectedRouter.HandleFunc("/panic/key_events", recordKeyEvent).Methods("POST")
	protectedRouter.HandleFunc("/panic/events", listPanicEvents).Methods("GET")
	protectedRouter.HandleFunc("/panic/recording/stop", stopRecording).Methods("POST")

	protectedRouter.HandleFunc("/vault", uploadToVault).Methods("POST")
	protectedRouter.HandleFunc("/vault", getVault).Methods("GET")
	protectedRouter.HandleFunc("/vault/stats", getVaultStats).Methods("GET")
	protectedRouter.HandleFunc("/vault/files", deleteVaultFile).Methods("DELETE")
	protectedRouter.HandleFunc("/vault/files/download", downloadVaultFile).Methods("GET")
	protectedRouter.HandleFunc("/vault/recent", listRecentFiles).Methods("GET")

	protectedRouter.HandleFunc("/tracking", startTracking).Methods("POST")
	protectedRouter.HandleFunc("/tracking", stopTracking).Methods("DELETE")

	return router
}

// detectorFor returns the user's key-event trigger detector, creating
// one on first use. The detector fires the volume-key panic flow when
// the press threshold is reached within the window.
func detectorFor(ownerUID string) *emergency.TriggerDetector {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()

	detector, ok := detectors[ownerUID]
	if ok {
		return detector
	}

	threshold := serverConfig.Panic.TriggerThreshold
	if threshold <= 0 {
		threshold = emergency.DefaultTriggerThreshold
	}

	detector = emergency.NewTriggerDetector(
		threshold,
		secondsOrDefault(serverConfig.Panic.TriggerWindowSeconds, emergency.DefaultTriggerWindow),
		func() { panicOrchestrator.TriggerVolumeKeyPanic(ownerUID) },
	)
	detectors[ownerUID] = detector

	return detector
}

func recordingDirectory(config *shared.ServerConfig, devMode bool) string {
	if config.Panic.RecordingDirectory != "" {
		return config.Panic.RecordingDirectory
	}

	return configDirectory(devMode)
}

package recording

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/server/models"
	"github.com/sheguard/sheguard/utils"
)

const DefaultMaxDuration = 60 * time.Second

var logg = logger.NewLogger()

type state int

const (
	stateIdle state = iota
	stateRecording
	stateStopping
)

// Uploader hands a finished recording artifact off to the vault
// upload pipeline. The controller never blocks on upload completion.
type Uploader interface {
	EnqueueEvidenceUpload(ownerUID, path string, fileType models.FileType) error
}

// Controller drives a single capture device through
// Idle -> Recording -> Stopping -> Idle. The recorder handle is
// exclusively owned here and is released on every exit path.
type Controller struct {
	mu sync.Mutex

	state       state
	recorder    Recorder
	uploader    Uploader
	outputDir   string
	maxDuration time.Duration
	fileType    models.FileType

	autoStop    *time.Timer
	currentPath string
	ownerUID    string
}

func NewController(recorder Recorder, uploader Uploader, outputDir string, maxDuration time.Duration) *Controller {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	return &Controller{
		recorder:    recorder,
		uploader:    uploader,
		outputDir:   outputDir,
		maxDuration: maxDuration,
		fileType:    models.AUDIO,
	}
}

// StartRecording begins a bounded-duration capture for 'ownerUID'.
// A no-op while a recording is already running. Any setup failure
// returns the controller straight to Idle.
func (c *Controller) StartRecording(ownerUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		logg.Warn("recording already in progress")
		return nil
	}

	if err := utils.CreateDirIfNotExist(c.outputDir); err != nil {
		return fmt.Errorf("StartRecording: %v", err)
	}

	path := filepath.Join(c.outputDir, fmt.Sprintf("panic_%v.m4a", time.Now().Format("20060102_150405")))
	if err := c.recorder.Start(path); err != nil {
		c.state = stateIdle
		return fmt.Errorf("StartRecording: %v", err)
	}

	c.state = stateRecording
	c.currentPath = path
	c.ownerUID = ownerUID

	if c.autoStop != nil {
		c.autoStop.Stop()
	}
	c.autoStop = time.AfterFunc(c.maxDuration, func() {
		if err := c.StopRecording(); err != nil {
			logg.Errorf("auto-stop: %v", err)
		}
	})

	logg.Infof("recording started: %v", path)
	return nil
}

// StopRecording is idempotent: it cancels the auto-stop timer, always
// releases the recorder, and hands the artifact to the upload
// pipeline without waiting for the upload.
func (c *Controller) StopRecording() error {
	c.mu.Lock()

	if c.state != stateRecording {
		c.mu.Unlock()
		return nil
	}
	c.state = stateStopping

	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}

	stopErr := c.recorder.Stop()

	path := c.currentPath
	ownerUID := c.ownerUID
	c.currentPath = ""
	c.ownerUID = ""
	c.state = stateIdle
	c.mu.Unlock()

	if stopErr != nil {
		logg.Errorf("recorder stop: %v", stopErr)
	}

	// A failed stop can still leave a usable partial artifact behind
	if utils.FileExist(path) {
		if err := c.uploader.EnqueueEvidenceUpload(ownerUID, path, c.fileType); err != nil {
			return fmt.Errorf("StopRecording: enqueue upload: %v", err)
		}
		logg.Infof("recording stopped, upload enqueued: %v", path)
	} else {
		logg.Warnf("recording stopped with no artifact: %v", path)
	}

	return stopErr
}

func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateRecording
}

// Close tears the controller down, stopping any in-flight recording
// so the recorder handle never leaks past shutdown.
func (c *Controller) Close() error {
	return c.StopRecording()
}

package server

import (
	"context"
	"fmt"

	"github.com/sheguard/sheguard/server/models"
	"github.com/sheguard/sheguard/server/tracking"
	"github.com/sheguard/sheguard/server/work"
)

// workerPoolUploader hands evidence artifacts to the worker pool so a
// panic recording survives a crash between capture & upload.
type workerPoolUploader struct{}

func (workerPoolUploader) EnqueueEvidenceUpload(ownerUID, path string, fileType models.FileType) error {
	return workerPool.Perform(work.JobParams{
		Name:    fmt.Sprintf("upload_evidence:%v", path),
		Handler: "upload_evidence",
		Args: map[string]interface{}{
			"owner_uid": ownerUID,
			"path":      path,
			"file_type": string(fileType),
		},
	})
}

func uploadEvidence(args map[string]interface{}) error {
	ownerUID := fmt.Sprintf("%v", args["owner_uid"])
	path := fmt.Sprintf("%v", args["path"])
	fileType := models.FileType(fmt.Sprintf("%v", args["file_type"]))

	_, err := vaultService.UploadLocalEvidence(context.Background(), ownerUID, path, fileType)

	return err
}

// reapTrackingSessions closes out sessions whose duration elapsed
// without their in-memory auto-stop firing, e.g. after a restart.
func reapTrackingSessions(args map[string]interface{}) error {
	return tracking.ReapExpired(trackingManager.ReapOrphaned)
}

func registerJobHandlers(wpa *work.WorkerPoolAdapter) {
	wpa.Register("upload_evidence", uploadEvidence)
	wpa.Register("reap_tracking_sessions", reapTrackingSessions)
}

func enqueueJobs(wpa *work.WorkerPoolAdapter) {
	wpa.PeriodicallyPerform("*/5 * * * *", work.JobParams{
		Name:    "reap_tracking_sessions",
		Handler: "reap_tracking_sessions",
		Args:    map[string]interface{}{},
	})
}

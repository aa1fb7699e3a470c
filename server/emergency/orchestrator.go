package emergency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheguard/sheguard/server/location"
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/server/models"
)

var logg = logger.NewLogger()

// Messenger dispatches one alert message to a phone number.
type Messenger interface {
	SendMessage(to, msg string) error
}

// Capturer starts evidence capture for a user. Stop is driven by the
// capture controller's own auto-stop timer.
type Capturer interface {
	StartRecording(ownerUID string) error
}

// Orchestrator coordinates the panic fan-out: evidence capture,
// location fetch, alert messaging and event persistence. Every unit
// is best-effort - a failure in one never cancels or delays the
// others, and nothing propagates to the caller.
type Orchestrator struct {
	messenger Messenger
	locations *location.Provider
	capture   Capturer
}

func NewOrchestrator(messenger Messenger, locations *location.Provider, capture Capturer) *Orchestrator {
	return &Orchestrator{
		messenger: messenger,
		locations: locations,
		capture:   capture,
	}
}

// TriggerPanic fires the panic fan-out for the user. Evidence capture
// is attempted only when requested.
func (o *Orchestrator) TriggerPanic(ownerUID string, includeRecording bool) {
	o.trigger(ownerUID, includeRecording, models.BUTTON_TRIGGER)
}

// TriggerVolumeKeyPanic is the stealth trigger path: evidence capture
// is always attempted, and the persisted event carries a different
// trigger-method discriminator.
func (o *Orchestrator) TriggerVolumeKeyPanic(ownerUID string) {
	o.trigger(ownerUID, true, models.VOLUME_KEY_TRIGGER)
}

func (o *Orchestrator) trigger(ownerUID string, includeRecording bool, method string) {
	logg.Infof("panic triggered for user %v via %v", ownerUID, method)

	var wg sync.WaitGroup

	if includeRecording {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverUnit("evidence capture")

			if err := o.capture.StartRecording(ownerUID); err != nil {
				logg.Errorf("evidence capture: %v", err)
			}
		}()
	}

	// Bounded wait for a fix; a missing location degrades the alert
	// text, it never blocks the dispatch.
	fix := o.locations.Current(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverUnit("alert dispatch")
		o.dispatchAlerts(ownerUID, fix, includeRecording)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverUnit("event persistence")
		o.persistEvent(ownerUID, fix, includeRecording, method)
	}()

	wg.Wait()
}

func (o *Orchestrator) dispatchAlerts(ownerUID string, fix *location.Fix, includeRecording bool) {
	contacts, err := models.SelectedContacts(ownerUID)
	if err != nil {
		logg.Errorf("alert dispatch: fetching contacts: %v", err)
		return
	}

	if len(contacts) == 0 {
		logg.Warnf("no selected emergency contacts for user %v", ownerUID)
		return
	}

	msg := alertMessage(fix, includeRecording)
	for _, contact := range contacts {
		to := contact.FormattedPhoneNumber()
		if to == "" {
			continue
		}

		if err := o.messenger.SendMessage(to, msg); err != nil {
			logg.Errorf("alert dispatch to %v failed: %v", to, err)
			continue
		}
		logg.Infof("panic alert sent to %v", to)
	}
}

func (o *Orchestrator) persistEvent(ownerUID string, fix *location.Fix, includeRecording bool, method string) {
	event := models.PanicEvent{
		EventID:        uuid.NewString(),
		OwnerUID:       ownerUID,
		EventDate:      time.Now().UnixMilli(),
		TriggerMethod:  method,
		AudioRecording: includeRecording,
	}

	if includeRecording {
		event.RecordURL = models.RECORDING_IN_PROGRESS
	}

	// 0.0 lat/lng means "unknown" to every reader of this record
	if fix != nil {
		event.Latitude = fix.Latitude
		event.Longitude = fix.Longitude
	}

	if err := models.CreatePanicEvent(&event); err != nil {
		logg.Errorf("event persistence: %v", err)
		return
	}
	logg.Infof("panic event %v persisted", event.EventID)
}

func alertMessage(fix *location.Fix, includeRecording bool) string {
	locationText := "Location unavailable"
	if fix != nil {
		locationText = "Location: " + location.MapsLink(*fix)
	}

	audioText := ""
	if includeRecording {
		audioText = "\nAudio recording started for evidence."
	}

	return fmt.Sprintf(
		"🚨 EMERGENCY ALERT 🚨\n"+
			"This is an automated emergency message from the SheGuard app.\n"+
			"I need immediate help!\n"+
			"%v%v\n"+
			"Time: %v",
		locationText, audioText, time.Now().Format("2006-01-02 15:04:05"))
}

func recoverUnit(name string) {
	if r := recover(); r != nil {
		logg.Errorf("%v unit panicked: %v", name, r)
	}
}

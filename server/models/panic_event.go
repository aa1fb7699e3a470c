package models

import "errors"

const (
	// Trigger method discriminators recorded on each panic event.
	BUTTON_TRIGGER     = "button"
	VOLUME_KEY_TRIGGER = "volume_keys"

	// RecordURL sentinel while evidence capture is still in flight.
	RECORDING_IN_PROGRESS = "recording-in-progress"
)

// PanicEvent is the persisted record of one panic trigger. A 0.0
// latitude/longitude pair means "location unknown", not a coordinate.
type PanicEvent struct {
	BaseModel
	EventID        string  `json:"event_id" gorm:"uniqueIndex;not null"`
	OwnerUID       string  `json:"uid" gorm:"index;not null"`
	RecordURL      string  `json:"record_url"`
	EventDate      int64   `json:"event_date"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TriggerMethod  string  `json:"trigger_method"`
	AudioRecording bool    `json:"audio_recording"`
}

func CreatePanicEvent(event *PanicEvent) error {
	if event.EventID == "" {
		return errors.New("panic event requires an event id")
	}
	return db.Create(event).Error
}

func FetchPanicEvents(ownerUID string, page int) ([]PanicEvent, *Paging, error) {
	var total int64
	events := []PanicEvent{}

	err := db.Model(&PanicEvent{}).Where("owner_uid = ?", ownerUID).Count(&total).Error
	if err != nil {
		return nil, nil, err
	}

	err = db.Scopes(paginate(page, DEFAULT_PAGE_SIZE)).
		Where("owner_uid = ?", ownerUID).
		Order("event_date desc").
		Find(&events).Error
	if err != nil {
		return nil, nil, err
	}

	return events, newPaging(int64(page), DEFAULT_PAGE_SIZE, total), nil
}

func DeletePanicEventsByOwner(ownerUID string) error {
	return db.Where("owner_uid = ?", ownerUID).Delete(&PanicEvent{}).Error
}

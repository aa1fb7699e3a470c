package models

import (
	"time"

	"gorm.io/gorm"
)

// TrackingSession is the persisted state of one live-tracking
// session. LastSentTime is the throttle cursor for location-update
// messages; LocationHistory grows monotonically for path rendering.
type TrackingSession struct {
	SessionID       string        `json:"session_id" gorm:"primaryKey"`
	OwnerUID        string        `json:"uid" gorm:"index;not null"`
	StartTime       int64         `json:"start_time"`
	DurationSeconds int64         `json:"duration_seconds"`
	IsActive        bool          `json:"is_active" gorm:"default:false"`
	LastSentTime    int64         `json:"last_sent_time"`
	LocationHistory []TrackingFix `json:"location_history" gorm:"foreignKey:SessionRef;references:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type TrackingFix struct {
	BaseModel
	SessionRef string  `json:"-" gorm:"index;not null"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	RecordedAt int64   `json:"recorded_at"`
}

func CreateTrackingSession(session *TrackingSession) error {
	return db.Create(session).Error
}

func FindTrackingSession(sessionID string) (*TrackingSession, error) {
	session := TrackingSession{}
	err := db.Preload("LocationHistory", fixesInSampleOrder).First(&session, "session_id = ?", sessionID).Error
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (session *TrackingSession) AppendFix(fix TrackingFix) error {
	fix.SessionRef = session.SessionID
	return db.Create(&fix).Error
}

func (session *TrackingSession) UpdateLastSentTime(lastSentTime int64) error {
	return db.Model(&TrackingSession{}).Where("session_id = ?", session.SessionID).
		Update("last_sent_time", lastSentTime).Error
}

func (session *TrackingSession) MarkStopped() error {
	return db.Model(&TrackingSession{}).Where("session_id = ?", session.SessionID).
		Update("is_active", false).Error
}

// FetchExpiredActiveSessions returns sessions still flagged active
// whose duration has elapsed - i.e. sessions orphaned by a crash.
func FetchExpiredActiveSessions(now time.Time) ([]TrackingSession, error) {
	sessions := []TrackingSession{}
	err := db.Where("is_active = ? AND start_time + duration_seconds <= ?", true, now.Unix()).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func DeleteTrackingSessionsByOwner(ownerUID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		sessions := []TrackingSession{}
		if err := tx.Where("owner_uid = ?", ownerUID).Find(&sessions).Error; err != nil {
			return err
		}

		for _, session := range sessions {
			if err := tx.Where("session_ref = ?", session.SessionID).Delete(&TrackingFix{}).Error; err != nil {
				return err
			}
		}

		return tx.Where("owner_uid = ?", ownerUID).Delete(&TrackingSession{}).Error
	})
}

func fixesInSampleOrder(db *gorm.DB) *gorm.DB {
	return db.Order("tracking_fixes.id asc")
}

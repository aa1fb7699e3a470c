package shared

type ServerConfig struct {
	Sqlite   SqliteConfig   `mapstructure:"sqlite" validate:"required"`
	SheGuard SheGuardConfig `mapstructure:"sheguard" validate:"required"`
	Google   GoogleConfig   `mapstructure:"google"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Panic    PanicConfig    `mapstructure:"panic"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

type SqliteConfig struct {
	PassPhrase string `mapstructure:"passPhrase" validate:"required"`
}

type SheGuardConfig struct {
	PrivateKeyPem string         `mapstructure:"privateKeyPem" validate:"required"`
	Cron          CronConfig     `mapstructure:"cron" validate:"required"`
	Listener      ListenerConfig `mapstructure:"listener" validate:"required"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type StorageConfig struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
}

// PanicConfig tunes the trigger detector & evidence capture.
type PanicConfig struct {
	TriggerThreshold       int    `mapstructure:"triggerThreshold"`
	TriggerWindowSeconds   int    `mapstructure:"triggerWindowSeconds"`
	RecordingDirectory     string `mapstructure:"recordingDirectory"`
	RecordingSeconds       int    `mapstructure:"recordingSeconds"`
	RecordingCommand       string `mapstructure:"recordingCommand"`
	LocationTimeoutSeconds int    `mapstructure:"locationTimeoutSeconds"`
}

// TrackingConfig tunes live-tracking sessions.
type TrackingConfig struct {
	UpdateIntervalSeconds int     `mapstructure:"updateIntervalSeconds"`
	SampleIntervalSeconds int     `mapstructure:"sampleIntervalSeconds"`
	MinDistanceMeters     float64 `mapstructure:"minDistanceMeters"`
}

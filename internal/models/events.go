package models

// ClientEvent is relayed to connected tabs over the event stream. The
// service worker forwards PLAY_ADHAN and LOG_PRAYER to the active tab.
type ClientEvent struct {
	Type      string `json:"type"` // PLAY_ADHAN, LOG_PRAYER, STOP_AUDIO
	Prayer    string `json:"prayer,omitempty"`
	AudioFile string `json:"audioFile,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

const (
	EventPlayAdhan = "PLAY_ADHAN"
	EventLogPrayer = "LOG_PRAYER"
	EventStopAudio = "STOP_AUDIO"
)

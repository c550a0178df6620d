package download

import "time"

// State is the lifecycle state of a download.
type State string

const (
	StateProgressing State = "progressing"
	StatePaused      State = "paused"
	StateInterrupted State = "interrupted"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateInterrupted, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// Item is the live view of an in-flight download.
type Item struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	URLChain      []string  `json:"url_chain"`
	SavePath      string    `json:"save_path"`
	TotalBytes    int64     `json:"total_bytes"`
	ReceivedBytes int64     `json:"received_bytes"`
	State         State     `json:"state"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time,omitempty"`
	Speed         float64   `json:"speed"`
	ETA           float64   `json:"eta"`
	IsPaused      bool      `json:"is_paused"`
}

// URL returns the originating URL.
func (i Item) URL() string {
	if len(i.URLChain) == 0 {
		return ""
	}
	return i.URLChain[0]
}

// Record is the immutable history entry written on a terminal transition.
type Record struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	URL           string    `json:"url"`
	SavePath      string    `json:"save_path"`
	TotalBytes    int64     `json:"total_bytes"`
	ReceivedBytes int64     `json:"received_bytes"`
	State         State     `json:"state"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// Action is a user command against a live download.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

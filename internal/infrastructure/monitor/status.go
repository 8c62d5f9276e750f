package monitor

import "time"

type Status struct {
	API          bool          `json:"api"`
	APILatency   time.Duration `json:"api_latency"`
	APIError     string        `json:"api_error,omitempty"`
	Session      bool          `json:"session"`
	SessionError string        `json:"session_error,omitempty"`
	Backend      string        `json:"backend"`
	CacheEntries int           `json:"cache_entries"`
	LastCheck    time.Time     `json:"last_check"`
}

// Online reports whether both the API and the session backend answered.
func (s Status) Online() bool {
	return s.API && s.Session
}

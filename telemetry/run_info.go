package telemetry

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// RunInfo identifies one race in logs and reports.
type RunInfo struct {
	RaceID    string    `json:"race_id"`
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	Host      string    `json:"host"`
	Attempts  int       `json:"attempts"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

// NewRunInfo stamps a new race with a random ID and the current time.
func NewRunInfo(name, mode, host string, attempts int) RunInfo {
	return RunInfo{
		RaceID:    uuid.NewString(),
		Name:      name,
		Mode:      mode,
		Host:      host,
		Attempts:  attempts,
		PID:       os.Getpid(),
		StartTime: time.Now().UTC(),
	}
}

// Fields returns the info as event fields.
func (r RunInfo) Fields() map[string]interface{} {
	return map[string]interface{}{
		"race_id":  r.RaceID,
		"name":     r.Name,
		"mode":     r.Mode,
		"host":     r.Host,
		"attempts": r.Attempts,
		"pid":      r.PID,
		"start":    r.StartTime.Format(time.RFC3339Nano),
	}
}

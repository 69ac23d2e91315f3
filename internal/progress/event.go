package progress

// Status describes which phase of its lifecycle a download job is
// reporting. A job's event sequence is a run of 'starting'/'downloading'
// events terminated by exactly one 'finished' or 'error' event.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
)

// Event is a point-in-time snapshot of one job's transfer progress.
// Percent is non-decreasing across the events of a single job. Detail
// is only populated on 'error' events and carries the same reason the
// HTTP caller receives, so both observers agree on what went wrong.
type Event struct {
	Status           Status  `json:"status"`
	Percent          float64 `json:"percent"`
	SpeedBytesPerSec float64 `json:"speed"`
	EtaSeconds       int     `json:"eta"`
	Detail           string  `json:"detail,omitempty"`
}

// Terminal reports whether this event ends a job's event sequence.
func (event Event) Terminal() bool {
	return event.Status == StatusFinished || event.Status == StatusError
}

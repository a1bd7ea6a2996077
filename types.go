package aiops

import "time"

// Decision is an approver's answer to a tool request.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
)

// Run statuses reported in Result.Status.
const (
	StatusResolved   = "resolved"
	StatusUnresolved = "unresolved"
	StatusFailed     = "failed"
)

// Result is the public view of one run.
// No internal package imports; safe to use from outside the module.
type Result struct {
	TraceID   string
	Input     string
	Status    string
	Loops     int            // Remediation iterations executed.
	Report    map[string]any // Output of the Report stage; nil when the run aborted.
	StartedAt time.Time
	Duration  time.Duration
}

// Resolved reports whether verification confirmed a fix.
func (r Result) Resolved() bool {
	return r.Status == StatusResolved
}

// Incident is one archived incident.
type Incident struct {
	ID         int64
	Summary    string
	Resolution string
}

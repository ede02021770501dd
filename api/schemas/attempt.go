package schemas

import "time"

// AttemptResult is the final verdict of one application attempt.
type AttemptResult string

const (
	ResultSubmitted            AttemptResult = "SUBMITTED"
	ResultSubmittedUnconfirmed AttemptResult = "SUBMITTED_UNCONFIRMED"
	ResultFailed               AttemptResult = "FAILED"
)

// Succeeded reports whether the form was submitted. Unconfirmed submissions
// count, but callers should flag them for manual verification.
func (r AttemptResult) Succeeded() bool {
	return r == ResultSubmitted || r == ResultSubmittedUnconfirmed
}

// SessionStats are counters gathered over one attempt.
type SessionStats struct {
	PagesOpened   int                `json:"pages_opened"`
	CaptchaSolved int                `json:"captcha_solved"`
	CaptchaFailed int                `json:"captcha_failed"`
	Provenance    map[Provenance]int `json:"provenance"`
}

// NewSessionStats returns zeroed stats with an initialized provenance map.
func NewSessionStats() SessionStats {
	return SessionStats{Provenance: make(map[Provenance]int)}
}

// SuccessRate is solved/(solved+failed). It is 0 when no captcha was seen.
func (s SessionStats) SuccessRate() float64 {
	total := s.CaptchaSolved + s.CaptchaFailed
	if total == 0 {
		return 0
	}
	return float64(s.CaptchaSolved) / float64(total)
}

// RecordMappings adds the provenance of every result to the distribution.
func (s *SessionStats) RecordMappings(results []MappingResult) {
	if s.Provenance == nil {
		s.Provenance = make(map[Provenance]int)
	}
	for _, r := range results {
		p := r.Provenance
		if p == "" {
			p = ProvenanceUnresolved
		}
		s.Provenance[p]++
	}
}

// ApplicationAttempt is the record of one end-to-end execution against a job URL.
type ApplicationAttempt struct {
	ID              string        `json:"id"`
	JobURL          string        `json:"job_url"`
	ProfileRef      string        `json:"profile_ref"`
	Number          int           `json:"attempt_number"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Outcomes        []FillOutcome `json:"outcomes"`
	Required        []string      `json:"required"`
	Filled          []string      `json:"filled"`
	MissingRequired []string      `json:"missing_required"`
	Result          AttemptResult `json:"result"`
	FailureReason   ErrorCode     `json:"failure_reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	Artifacts       []string      `json:"artifacts,omitempty"`
	Stats           SessionStats  `json:"stats"`
}

// Fail marks the attempt as failed with err's code and message.
func (a *ApplicationAttempt) Fail(err error) {
	a.Result = ResultFailed
	a.FailureReason = CodeOf(err)
	if err != nil {
		a.Error = err.Error()
	}
}

package integrity

import "time"

const (
	StatusPassed = "passed"
	StatusFixed  = "fixed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// ReviewItem is one violation the engine refused to repair.
type ReviewItem struct {
	Check    string      `json:"check"`
	Entity   string      `json:"entity"`
	EntityID uint        `json:"entityId,omitempty"`
	Reason   string      `json:"reason"`
	Details  interface{} `json:"details,omitempty"`
}

type CheckResult struct {
	Name                 string       `json:"name"`
	Status               string       `json:"status"`
	Message              string       `json:"message"`
	Details              interface{}  `json:"details,omitempty"`
	FixedCount           int          `json:"fixedCount,omitempty"`
	RequiresManualReview bool         `json:"requiresManualReview,omitempty"`
	Error                string       `json:"error,omitempty"`
	ManualReview         []ReviewItem `json:"manualReview,omitempty"`
}

type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Fixed  int `json:"fixed"`
}

// Report is the outcome of one sweep. Checks that errored are counted as
// failed in the summary.
type Report struct {
	RunID        string        `json:"runId"`
	Timestamp    time.Time     `json:"timestamp"`
	Checks       []CheckResult `json:"checks"`
	Summary      Summary       `json:"summary"`
	ManualReview []ReviewItem  `json:"manualReview"`
}

func (r *Report) add(res CheckResult) {
	r.Checks = append(r.Checks, res)
	r.Summary.Total++
	switch res.Status {
	case StatusPassed:
		r.Summary.Passed++
	case StatusFixed:
		r.Summary.Fixed++
	default:
		r.Summary.Failed++
	}
	r.ManualReview = append(r.ManualReview, res.ManualReview...)
}

// Result returns the check named name, if it ran.
func (r *Report) Result(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// finding collects what a check saw while it ran.
type finding struct {
	fixed  int
	failed int
	review []ReviewItem
	detail []interface{}
}

// flag records a violation that was left untouched.
func (f *finding) flag(item ReviewItem) {
	f.failed++
	f.review = append(f.review, item)
}

// note records a repair that a person should still look at.
func (f *finding) note(item ReviewItem) {
	f.review = append(f.review, item)
}

// result turns a finding into a CheckResult. Anything left for review wins
// over repairs so the check keeps showing up until someone resolves it.
func (f *finding) result(name, passedMsg, fixedMsg, failedMsg string) CheckResult {
	res := CheckResult{
		Name:                 name,
		FixedCount:           f.fixed,
		RequiresManualReview: len(f.review) > 0,
		ManualReview:         f.review,
	}
	if len(f.detail) > 0 {
		res.Details = f.detail
	}
	switch {
	case f.failed > 0:
		res.Status = StatusFailed
		res.Message = failedMsg
	case f.fixed > 0:
		res.Status = StatusFixed
		res.Message = fixedMsg
	default:
		res.Status = StatusPassed
		res.Message = passedMsg
	}
	return res
}

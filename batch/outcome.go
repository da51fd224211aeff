package batch

import (
	"iter"
)

// OutcomeKind tags what happened to one bulk item.
type OutcomeKind int

const (
	OutcomeWritten OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWritten:
		return "written"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one bulk item. Path is the intended output path
// for written and failed items.
type Outcome struct {
	Index int
	Name  string
	Path  string
	Kind  OutcomeKind
	Err   error
}

// FailedItem describes one name that could not be produced.
type FailedItem struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// BulkResult summarizes a bulk run. TotalRequested counts every name given,
// skipped ones included.
type BulkResult struct {
	SuccessCount    int          `json:"successCount"`
	TotalRequested  int          `json:"totalRequested"`
	Skipped         int          `json:"skipped"`
	OutputDirectory string       `json:"outputDirectory,omitempty"`
	Written         []string     `json:"written,omitempty"`
	Failed          []FailedItem `json:"failed,omitempty"`
	Cancelled       bool         `json:"cancelled,omitempty"`
}

// Summarize folds a sequence of outcomes into a BulkResult. It drains seq.
func Summarize(seq iter.Seq[Outcome]) BulkResult {
	var res BulkResult
	for o := range seq {
		res.TotalRequested++
		switch o.Kind {
		case OutcomeWritten:
			res.SuccessCount++
			res.Written = append(res.Written, o.Path)
		case OutcomeSkipped:
			res.Skipped++
		case OutcomeFailed:
			msg := ""
			if o.Err != nil {
				msg = o.Err.Error()
			}
			res.Failed = append(res.Failed, FailedItem{Index: o.Index, Name: o.Name, Error: msg})
		}
	}
	return res
}

package service

import (
	"github.com/RCOEM-Google-DSC/enso/batch"
	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/store"
)

// ReasonCancelled marks a result whose dialog was dismissed.
const ReasonCancelled = "cancelled"

// Result is the shape shared by every operation: Success, and Error when it
// is false.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PreviewResult struct {
	Result
	Path string `json:"path,omitempty"`
}

type SaveResult struct {
	Result
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BulkResult reports a bulk run. Count and Folder are the aggregate the UI
// shows; Failed itemizes the names that could not be produced.
type BulkResult struct {
	Result
	Count   int                `json:"count"`
	Total   int                `json:"total"`
	Skipped int                `json:"skipped,omitempty"`
	Folder  string             `json:"folder,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	Failed  []batch.FailedItem `json:"failed,omitempty"`
}

type UploadResult struct {
	Result
	FilePath string          `json:"filePath,omitempty"`
	Template *store.Template `json:"template,omitempty"`
}

type PathResult struct {
	Result
	FilePath string `json:"filePath,omitempty"`
}

type StyleResult struct {
	Result
	Style certificate.StyleOptions `json:"style"`
}

type HistoryResult struct {
	Result
	Records []store.GeneratedRecord `json:"records"`
}

// DataResult carries the rows of a data file after an operation, and the
// added row for AddRecord.
type DataResult struct {
	Result
	Record  store.Record   `json:"record,omitempty"`
	Records []store.Record `json:"records"`
}

type PresenceResult struct {
	Result
	Connected bool `json:"connected"`
}

func ok() Result { return Result{Success: true} }

func failed(err error) Result {
	return Result{Error: err.Error()}
}

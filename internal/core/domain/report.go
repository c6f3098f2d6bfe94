package domain

import "time"

// ReportRecord is the archived summary of one recovery run.
type ReportRecord struct {
	ID                string         `json:"id"                 db:"id"`
	Source            string         `json:"source"             db:"source"`
	Digest            string         `json:"digest"             db:"digest"`
	Level             string         `json:"level"              db:"level"`
	Tier              string         `json:"tier"               db:"tier"`
	Health            DocumentHealth `json:"health"             db:"health"`
	Success           bool           `json:"success"            db:"success"`
	ErrorsEncountered int            `json:"errors_encountered" db:"errors_encountered"`
	ErrorsRecovered   int            `json:"errors_recovered"   db:"errors_recovered"`
	InputSize         int64          `json:"input_size"         db:"input_size"`
	OutputSize        int64          `json:"output_size"        db:"output_size"`
	Payload           []byte         `json:"payload"            db:"payload"`
	CreatedAt         time.Time      `json:"created_at"         db:"created_at"`
}

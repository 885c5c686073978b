package worker

import (
	"time"

	"go.uber.org/zap"
)

// Summary reports the outcome of one crawl run.
type Summary struct {
	RunID             string        `json:"run_id"`
	State             State         `json:"state"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Duration          time.Duration `json:"duration_ns"`
	Pages             int           `json:"pages"`
	FailedPages       int           `json:"failed_pages"`
	NewListings       int           `json:"new_listings"`
	DuplicateListings int           `json:"duplicate_listings"`
	ListingsCompleted int           `json:"listings_completed"`
	FailedDetails     int           `json:"failed_details"`
	Items             int           `json:"items"`
	Files             int           `json:"files"`
	ArchivesInspected int           `json:"archives_inspected"`
	FailedArchives    int           `json:"failed_archives"`
	RowsSanitized     int           `json:"rows_sanitized"`
	Failures          int           `json:"failures"`
	Cancelled         bool          `json:"cancelled"`
}

// Finish stamps the end time and the terminal state.
func (s *Summary) Finish(now time.Time) {
	s.FinishedAt = now
	s.Duration = now.Sub(s.StartedAt)
	if s.Cancelled {
		s.State = StateCancelled
		return
	}
	s.State = StateDone
}

// Fields renders the summary as zap fields.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("state", string(s.State)),
		zap.Duration("duration", s.Duration),
		zap.Int("pages", s.Pages),
		zap.Int("failed_pages", s.FailedPages),
		zap.Int("new_listings", s.NewListings),
		zap.Int("duplicate_listings", s.DuplicateListings),
		zap.Int("listings_completed", s.ListingsCompleted),
		zap.Int("items", s.Items),
		zap.Int("files", s.Files),
		zap.Int("archives_inspected", s.ArchivesInspected),
		zap.Int("rows_sanitized", s.RowsSanitized),
		zap.Int("failures", s.Failures),
		zap.Bool("cancelled", s.Cancelled),
	}
}

// Rows returns label/value pairs for tabular display.
func (s Summary) Rows() [][2]any {
	return [][2]any{
		{"State", s.State},
		{"Duration", s.Duration.Round(time.Millisecond)},
		{"Pages requested", s.Pages},
		{"Failed pages", s.FailedPages},
		{"New listings", s.NewListings},
		{"Duplicate listings", s.DuplicateListings},
		{"Listings completed", s.ListingsCompleted},
		{"Failed detail fetches", s.FailedDetails},
		{"Items stored", s.Items},
		{"Files stored", s.Files},
		{"Archives inspected", s.ArchivesInspected},
		{"Failed archives", s.FailedArchives},
		{"Rows sanitized", s.RowsSanitized},
		{"Failures", s.Failures},
		{"Cancelled", s.Cancelled},
	}
}

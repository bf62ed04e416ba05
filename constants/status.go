package constants

// JobType labels the two kinds of asynchronous work the service runs.
type JobType string

const (
	JobTypeEnrichment JobType = "enrichment"
	JobTypeOrder      JobType = "order"
)

// Terminal status markers. Status text is free-form progress prose while a job
// runs; a terminal message always starts with one of these.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// StatusNoData is returned for job ids the registry has never seen.
const StatusNoData = "no data"

package models

// JobState represents the lifecycle state of a scrape job.
//
// Transitions: running -> fetching_list -> scraping -> completed | failed.
// Ad-hoc single-URL jobs skip fetching_list. Terminal states never
// transition further.
type JobState string

const (
	JobStateRunning      JobState = "running"       // registered, async driver not started yet
	JobStateFetchingList JobState = "fetching_list" // discovering detail URLs via the paginator
	JobStateScraping     JobState = "scraping"      // iterating target URLs
	JobStateCompleted    JobState = "completed"
	JobStateFailed       JobState = "failed"
)

// String implements fmt.Stringer for logging
func (s JobState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// Terminal returns true once the job can no longer change state
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Active returns true while the job still has work in flight
func (s JobState) Active() bool {
	switch s {
	case JobStateRunning, JobStateFetchingList, JobStateScraping:
		return true
	}
	return false
}

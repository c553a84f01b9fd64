package autotag

import (
	"time"

	"github.com/strefethen/metalookup-go/internal/musicbrainz"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCanceled  JobState = "canceled"
)

// ItemStatus is the outcome of looking up one item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemMatched   ItemStatus = "matched"
	ItemUnmatched ItemStatus = "unmatched"
	ItemFailed    ItemStatus = "failed"
	ItemCanceled  ItemStatus = "canceled"
)

// Item is one file the client wants tagged, described by whatever tags it already has.
type Item struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// Result is the proposal for one item.
type Result struct {
	Item   Item               `json:"item"`
	Status ItemStatus         `json:"status"`
	Match  *musicbrainz.Track `json:"match,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Job is a snapshot of an auto-tag batch.
type Job struct {
	Object     string     `json:"object"`
	ID         string     `json:"id"`
	State      JobState   `json:"state"`
	Total      int        `json:"total"`
	Done       int        `json:"done"`
	Results    []Result   `json:"results"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// EventType names a progress event.
type EventType string

const (
	EventItem     EventType = "item"
	EventFinished EventType = "finished"
)

// Event is published to subscribers as a job progresses.
type Event struct {
	Type   EventType `json:"type"`
	JobID  string    `json:"job_id"`
	State  JobState  `json:"state"`
	Done   int       `json:"done"`
	Total  int       `json:"total"`
	Index  int       `json:"index"`
	Result *Result   `json:"result,omitempty"`
}

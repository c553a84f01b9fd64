package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/strefethen/metalookup-go/internal/apperrors"
)

// Object names carried in the "object" field of every resource.
const (
	ObjectArtist       = "artist"
	ObjectAlbum        = "album"
	ObjectTrack        = "track"
	ObjectGenre        = "genre"
	ObjectCoverArt     = "cover_art"
	ObjectWikiSummary  = "wiki_summary"
	ObjectLookupStats  = "lookup_stats"
	ObjectCancellation = "cancellation"
	ObjectAutotagJob   = "autotag_job"
	ObjectSystemInfo   = "system_info"
)

// ListResponse is the list envelope for all collection endpoints.
// Example: {"object": "list", "data": [...], "has_more": false, "url": "/v1/artists"}
type ListResponse struct {
	Object  string `json:"object"`   // Always "list"
	Data    any    `json:"data"`     // Array of resources
	HasMore bool   `json:"has_more"` // Whether more items exist beyond this page
	URL     string `json:"url"`      // The URL for this list endpoint
}

// ErrorResponse wraps errors.
type ErrorResponse struct {
	Error apperrors.StripeErrorBody `json:"error"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError.
// Response format: {"error": {"type": "...", "code": "...", "message": "..."}}
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, ErrorResponse{Error: appErr.StripeErrorBody()})
}

// WriteList writes a list response.
// Example: WriteList(w, "/v1/genres", genres, false)
func WriteList(w http.ResponseWriter, url string, data any, hasMore bool) error {
	return WriteJSON(w, http.StatusOK, ListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
		URL:     url,
	})
}

// WriteResource writes a single resource directly, without a wrapper.
// The resource should already have an "object" field set.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}

// RFC3339Millis formats t in UTC with millisecond precision.
func RFC3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

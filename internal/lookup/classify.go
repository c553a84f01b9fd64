package lookup

import (
	"bytes"
	"encoding/json"
	"time"
)

// Verdict is the retry policy's reading of a resolved response.
type Verdict int

const (
	VerdictOK Verdict = iota
	// VerdictNotFound is a 404: the query is well formed but nothing matched.
	VerdictNotFound
	// VerdictRemoteError is an error the service reported about the query itself.
	// Retrying would not help.
	VerdictRemoteError
	// VerdictRetry covers transient failures and malformed payloads.
	VerdictRetry
	// VerdictStaleEmpty is a cached empty result fetched on an earlier day.
	VerdictStaleEmpty
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictNotFound:
		return "not_found"
	case VerdictRemoteError:
		return "remote_error"
	case VerdictRetry:
		return "retry"
	case VerdictStaleEmpty:
		return "stale_empty"
	default:
		return "unknown"
	}
}

// badRequestMarker shows up in short HTML error pages some proxies return with 200.
const (
	badRequestMarker = "bad request"
	shortBodyLimit   = 512
)

// envelope is the subset of a JSON payload the policy inspects.
type envelope struct {
	Error   *string `json:"error"`
	Count   *int    `json:"count"`
	Created string  `json:"created"`
}

// Classify decides what to do with resp. now is used for the stale-empty day check.
func Classify(resp Response, now time.Time) Verdict {
	if !resp.OK() {
		switch resp.ResponseCode {
		case 404:
			return VerdictNotFound
		case 400:
			if msg, ok := RemoteErrorMessage(resp.Body); ok && msg != "" {
				return VerdictRemoteError
			}
		}
		return VerdictRetry
	}

	if len(resp.Body) < shortBodyLimit &&
		bytes.Contains(bytes.ToLower(resp.Body), []byte(badRequestMarker)) {
		return VerdictRetry
	}

	var env envelope
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &env) != nil {
		return VerdictRetry
	}
	if env.Error != nil {
		return VerdictRemoteError
	}

	if resp.FromCache && env.Count != nil && *env.Count == 0 {
		created := resp.FetchedAt
		if t, err := time.Parse(time.RFC3339, env.Created); err == nil {
			created = t
		}
		if !sameDay(created, now) {
			return VerdictStaleEmpty
		}
	}
	return VerdictOK
}

// RemoteErrorMessage extracts the "error" field of a JSON body.
func RemoteErrorMessage(body []byte) (string, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return "", false
	}
	return *env.Error, true
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

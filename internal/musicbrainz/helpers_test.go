package musicbrainz

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/lookup"
)

const (
	testArtistID = "5b11f4ce-a62d-471e-81fc-a69a8278c7da"
	testGroupID  = "1b022e01-4da6-387b-8658-8678046e4cef"
)

type queryCall struct {
	Channel  string
	Key      string
	Owner    string
	Priority lookup.Priority
}

// fakeLookup answers queries from canned bodies keyed by channel and request key.
type fakeLookup struct {
	mu       sync.Mutex
	bodies   map[string]string
	errs     map[string]error
	calls    []queryCall
	canceled []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		bodies: make(map[string]string),
		errs:   make(map[string]error),
	}
}

func (f *fakeLookup) on(channel, key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[channel+" "+key] = body
}

func (f *fakeLookup) fail(channel, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[channel+" "+key] = err
}

func (f *fakeLookup) Query(_ context.Context, channel string, req lookup.Request) (*lookup.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, queryCall{Channel: channel, Key: req.Key, Owner: req.Owner, Priority: req.Priority})
	if err, ok := f.errs[channel+" "+req.Key]; ok {
		return nil, err
	}
	body, ok := f.bodies[channel+" "+req.Key]
	if !ok {
		return nil, nil
	}
	return &lookup.Response{Status: lookup.StatusOK, ResponseCode: 200, Body: []byte(body)}, nil
}

func (f *fakeLookup) Cancel(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, owner)
	return 2
}

func (f *fakeLookup) callsTo(prefix string) []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queryCall
	for _, call := range f.calls {
		if strings.HasPrefix(call.Key, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func newTestClient(f *fakeLookup) *Client {
	return NewClient(f, ClientConfig{}, hclog.NewNullLogger())
}

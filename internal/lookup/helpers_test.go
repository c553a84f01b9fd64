package lookup

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ==========================================================================
// Scripted transport
// ==========================================================================

type scriptedResponse struct {
	body []byte
	code int
	err  error
}

type scriptedTransport struct {
	mu        sync.Mutex
	calls     []string
	scripts   map[string][]scriptedResponse
	gates     map[string]chan struct{}
	handler   func(url string) scriptedResponse
	started   chan string
	defaultOK []byte
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		scripts:   make(map[string][]scriptedResponse),
		gates:     make(map[string]chan struct{}),
		started:   make(chan string, 256),
		defaultOK: []byte(`{"count":1}`),
	}
}

// respond queues responses for a URL suffix, consumed in order. The last one repeats.
func (f *scriptedTransport) respond(suffix string, responses ...scriptedResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[suffix] = append(f.scripts[suffix], responses...)
}

// hold blocks calls for suffix until the returned func is called or the request is aborted.
func (f *scriptedTransport) hold(suffix string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[suffix] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *scriptedTransport) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	var gate chan struct{}
	for suffix, g := range f.gates {
		if strings.HasSuffix(url, suffix) {
			gate = g
		}
	}
	f.mu.Unlock()

	f.started <- url

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler != nil {
		r := f.handler(url)
		return r.body, r.code, r.err
	}
	for suffix, script := range f.scripts {
		if !strings.HasSuffix(url, suffix) || len(script) == 0 {
			continue
		}
		r := script[0]
		if len(script) > 1 {
			f.scripts[suffix] = script[1:]
		}
		return r.body, r.code, r.err
	}
	return f.defaultOK, 200, nil
}

func (f *scriptedTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *scriptedTransport) callKeys(base string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, len(f.calls))
	for i, call := range f.calls {
		keys[i] = strings.TrimPrefix(call, base)
	}
	return keys
}

func (f *scriptedTransport) waitStarted(t *testing.T, suffix string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case url := <-f.started:
			if strings.HasSuffix(url, suffix) {
				return
			}
		case <-timeout:
			t.Fatalf("request %q never started", suffix)
		}
	}
}

// ==========================================================================
// Fake clock
// ==========================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const testBaseURL = "https://mb.test/ws/2/"

func newTestChannel(t *testing.T, transport Transport, cache Cache, cfg ChannelConfig) *Channel {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = ChannelMetadata
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = testBaseURL
	}
	ch := NewChannel(cfg, transport, cache, nil)
	t.Cleanup(ch.Close)
	return ch
}

func waitResolved(t *testing.T, p *Pending) (Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "request %q never resolved", p.Key())
	return resp, err
}

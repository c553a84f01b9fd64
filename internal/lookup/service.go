package lookup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Channel names used by the metadata client.
const (
	ChannelMetadata = "metadata"
	ChannelCoverArt = "coverart"
	ChannelWiki     = "wiki"
)

// ServiceConfig describes the channels a Service owns.
type ServiceConfig struct {
	Channels  []ChannelConfig
	Transport Transport
	// CacheFor returns the cache for a channel. Nil disables caching.
	CacheFor func(channel string) Cache
	Now      func() time.Time
}

// TransportError is returned when a request and its retry both failed at the transport level.
type TransportError struct {
	Channel string
	Key     string
	Code    int
	Body    []byte
}

func (e *TransportError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s %s: network error: %s", e.Channel, e.Key, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s %s: upstream returned %d", e.Channel, e.Key, e.Code)
}

// RemoteError is an error the remote service reported about the query.
type RemoteError struct {
	Channel string
	Key     string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: remote error: %s", e.Channel, e.Key, e.Message)
}

// Service owns the per-channel queues and applies the retry policy on top of them.
type Service struct {
	channels map[string]*Channel
	now      func() time.Time
	logger   hclog.Logger

	scopesMu sync.Mutex
	scopes   map[string]map[*ownerScope]struct{}
}

type ownerScope struct {
	cancel context.CancelFunc
}

// NewService starts one worker per configured channel.
func NewService(cfg ServiceConfig, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		channels: make(map[string]*Channel, len(cfg.Channels)),
		scopes:   make(map[string]map[*ownerScope]struct{}),
		now:      now,
		logger:   logger.Named("lookup"),
	}
	for _, chCfg := range cfg.Channels {
		if chCfg.Now == nil {
			chCfg.Now = now
		}
		var cache Cache
		if cfg.CacheFor != nil {
			cache = cfg.CacheFor(chCfg.Name)
		}
		s.channels[chCfg.Name] = NewChannel(chCfg, cfg.Transport, cache, s.logger)
	}
	return s
}

// Channel returns the named channel.
func (s *Service) Channel(name string) (*Channel, bool) {
	ch, ok := s.channels[name]
	return ch, ok
}

// Query runs req on the named channel and applies the retry policy.
//
// A nil response with a nil error means "no result": the key matched nothing or the
// payload stayed malformed after the retry. Malformed payloads, transport failures and
// cached empty results from an earlier day are retried exactly once with high priority,
// bypassing the cache.
func (s *Service) Query(ctx context.Context, channel string, req Request) (*Response, error) {
	ch, ok := s.channels[channel]
	if !ok {
		return nil, fmt.Errorf("unknown lookup channel %q", channel)
	}

	first, err := ch.Enqueue(ctx, req).Wait(ctx)
	if err != nil {
		return nil, err
	}

	verdict := Classify(first, s.now())
	switch verdict {
	case VerdictOK:
		return &first, nil
	case VerdictNotFound:
		return nil, nil
	case VerdictRemoteError:
		return nil, s.remoteError(channel, req.Key, first)
	}

	s.logger.Debug("retrying lookup", "channel", channel, "key", req.Key,
		"verdict", verdict.String(), "code", first.ResponseCode)

	retry := req
	retry.Priority = PriorityHigh
	retry.Cache = CacheBypass
	second, err := ch.Enqueue(ctx, retry).Wait(ctx)
	if err != nil {
		return nil, err
	}

	switch Classify(second, s.now()) {
	case VerdictOK:
		return &second, nil
	case VerdictRemoteError:
		return nil, s.remoteError(channel, req.Key, second)
	}

	if verdict == VerdictStaleEmpty {
		// The re-check failed; the cached empty result is still the best answer.
		return &first, nil
	}
	if second.ResponseCode == 404 {
		return nil, nil
	}
	if !second.OK() {
		return nil, &TransportError{Channel: channel, Key: req.Key, Code: second.ResponseCode, Body: second.Body}
	}

	s.logger.Warn("lookup payload malformed after retry", "channel", channel, "key", req.Key)
	return nil, nil
}

func (s *Service) remoteError(channel, key string, resp Response) error {
	msg, _ := RemoteErrorMessage(resp.Body)
	s.logger.Error("remote service rejected query", "channel", channel, "key", key,
		"code", resp.ResponseCode, "message", msg)
	return &RemoteError{Channel: channel, Key: key, Message: msg}
}

// Scope returns a context that ends when owner is canceled. Multi-request
// operations use it so a cancel landing between two requests stops the rest.
// Call release when the operation is done.
func (s *Service) Scope(ctx context.Context, owner string) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithCancel(ctx)
	if owner == "" {
		return scoped, cancel
	}

	scope := &ownerScope{cancel: cancel}
	s.scopesMu.Lock()
	if s.scopes[owner] == nil {
		s.scopes[owner] = make(map[*ownerScope]struct{})
	}
	s.scopes[owner][scope] = struct{}{}
	s.scopesMu.Unlock()

	release := func() {
		s.scopesMu.Lock()
		delete(s.scopes[owner], scope)
		if len(s.scopes[owner]) == 0 {
			delete(s.scopes, owner)
		}
		s.scopesMu.Unlock()
		cancel()
	}
	return scoped, release
}

// Cancel cancels owner's queued and in-flight requests on every channel, and
// ends every Scope taken for owner.
func (s *Service) Cancel(owner string) int {
	s.scopesMu.Lock()
	scopes := s.scopes[owner]
	delete(s.scopes, owner)
	s.scopesMu.Unlock()
	for scope := range scopes {
		scope.cancel()
	}

	total := 0
	for _, ch := range s.channels {
		total += ch.CancelOwner(owner)
	}
	return total
}

// Stats returns a snapshot of every channel, ordered by name.
func (s *Service) Stats() []ChannelStats {
	stats := make([]ChannelStats, 0, len(s.channels))
	for _, ch := range s.channels {
		stats = append(stats, ch.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Close stops every channel worker.
func (s *Service) Close() {
	for _, ch := range s.channels {
		ch.Close()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

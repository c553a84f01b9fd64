// Package musicbrainz turns MusicBrainz, Cover Art Archive and Wikipedia lookups into
// typed artist, album, track and genre records. Every request goes through the lookup
// engine, so ordering, caching, retries and owner cancellation apply uniformly.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/lookup"
	"github.com/strefethen/metalookup-go/internal/searchterm"
)

var (
	ErrInvalidID  = errors.New("invalid MusicBrainz id")
	ErrEmptyQuery = errors.New("search query is empty")
)

// Default search and browse limits.
const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 100
)

// Lookup is the engine the client issues requests through.
type Lookup interface {
	lookup.Querier
	Cancel(owner string) int
}

// ClientConfig holds optional tuning for a Client.
type ClientConfig struct {
	SearchLimit int           // Optional: defaults to DefaultSearchLimit
	PageSize    int           // Optional: browse page size, defaults to lookup.DefaultPageSize
	MaxPages    int           // Optional: defaults to lookup.DefaultMaxPages
	TTL         time.Duration // Optional: overrides each channel's cache TTL
}

// Client runs the high-level metadata operations.
type Client struct {
	lookup Lookup
	cfg    ClientConfig
	logger hclog.Logger
}

// NewClient creates a client over the lookup engine.
func NewClient(l Lookup, cfg ClientConfig, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.Default()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = lookup.DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = lookup.DefaultMaxPages
	}
	return &Client{
		lookup: l,
		cfg:    cfg,
		logger: logger.Named("musicbrainz"),
	}
}

// FindArtist searches artists by name. A leading "The" is ignored for matching.
func (c *Client) FindArtist(ctx context.Context, owner, name string) ([]*Artist, error) {
	query := searchterm.Field("artist", searchterm.StripLeadingArticle(name))
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := queryJSON[ArtistSearch](ctx, c, lookup.ChannelMetadata, lookup.Request{
		Owner:    owner,
		Key:      c.searchKey("artist", query, c.cfg.SearchLimit),
		Priority: lookup.PriorityHigh,
	})
	if err != nil || result == nil {
		return nil, err
	}

	artists := make([]*Artist, 0, len(result.Artists))
	for _, raw := range result.Artists {
		artists = append(artists, c.adaptArtist(raw, owner))
	}
	return artists, nil
}

// GetArtist looks up one artist with its genres. A nil artist means no match.
func (c *Client) GetArtist(ctx context.Context, owner, mbid string) (*Artist, error) {
	if err := validateID(mbid); err != nil {
		return nil, err
	}

	raw, err := queryJSON[RawArtist](ctx, c, lookup.ChannelMetadata, lookup.Request{
		Owner:    owner,
		Key:      "artist/" + mbid + "?inc=genres&fmt=json",
		Priority: lookup.PriorityHigh,
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return c.adaptArtist(*raw, owner), nil
}

// AlbumQuery searches release groups by title and, optionally, artist.
type AlbumQuery struct {
	Title  string
	Artist string
	Limit  int
}

// SearchReleaseGroups searches albums.
func (c *Client) SearchReleaseGroups(ctx context.Context, owner string, q AlbumQuery) ([]*Album, error) {
	query := searchterm.And(
		searchterm.Field("releasegroup", q.Title),
		searchterm.Field("artist", searchterm.StripLeadingArticle(q.Artist)),
	)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := queryJSON[ReleaseGroupSearch](ctx, c, lookup.ChannelMetadata, lookup.Request{
		Owner:    owner,
		Key:      c.searchKey("release-group", query, q.Limit),
		Priority: lookup.PriorityHigh,
	})
	if err != nil || result == nil {
		return nil, err
	}

	albums := make([]*Album, 0, len(result.ReleaseGroups))
	for _, raw := range result.ReleaseGroups {
		albums = append(albums, c.adaptAlbum(raw, owner))
	}
	return albums, nil
}

// ArtistAlbums browses every album and EP release group of an artist, oldest first.
func (c *Client) ArtistAlbums(ctx context.Context, owner, artistID string) ([]*Album, error) {
	if err := validateID(artistID); err != nil {
		return nil, err
	}

	browse, ok, err := lookup.FetchAll(ctx, c.lookup, c.pageQuery(owner, func(offset, limit int) string {
		return fmt.Sprintf("release-group?artist=%s&type=album|ep&limit=%d&offset=%d&fmt=json", artistID, limit, offset)
	}), decodeJSON[ReleaseGroupBrowse])
	if err != nil || !ok {
		return nil, err
	}

	albums := make([]*Album, 0, len(browse.ReleaseGroups))
	seen := make(map[string]bool, len(browse.ReleaseGroups))
	for _, raw := range browse.ReleaseGroups {
		if seen[raw.ID] {
			continue
		}
		seen[raw.ID] = true
		album := c.adaptAlbum(raw, owner)
		album.ArtistID = artistID
		albums = append(albums, album)
	}
	sortAlbums(albums)
	return albums, nil
}

// ReleaseGroupTracks returns the tracks of the first official release in a release group.
func (c *Client) ReleaseGroupTracks(ctx context.Context, owner, mbgid string) ([]*Track, error) {
	if err := validateID(mbgid); err != nil {
		return nil, err
	}

	browse, ok, err := lookup.FetchAll(ctx, c.lookup, c.pageQuery(owner, func(offset, limit int) string {
		return fmt.Sprintf("release?release-group=%s&inc=recordings+artist-credits+media&limit=%d&offset=%d&fmt=json",
			mbgid, limit, offset)
	}), decodeJSON[ReleaseBrowse])
	if err != nil || !ok {
		return nil, err
	}

	release, ok := firstOfficial(browse.Releases)
	if !ok {
		return nil, nil
	}

	var tracks []*Track
	for _, medium := range release.Media {
		for _, raw := range medium.Tracks {
			tracks = append(tracks, c.adaptTrack(raw, medium, release, mbgid, owner))
		}
	}
	return tracks, nil
}

// RecordingQuery searches recordings, typically to identify an untagged file.
type RecordingQuery struct {
	Title  string
	Artist string
	Album  string
	Limit  int
	// Interactive requests jump ahead of queued background work.
	Interactive bool
}

// SearchRecordings searches recordings and resolves each hit to its preferred release.
func (c *Client) SearchRecordings(ctx context.Context, owner string, q RecordingQuery) ([]*Track, error) {
	query := searchterm.And(
		searchterm.Field("recording", q.Title),
		searchterm.Field("artist", searchterm.StripLeadingArticle(q.Artist)),
		searchterm.Field("release", q.Album),
	)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	priority := lookup.PriorityNormal
	if q.Interactive {
		priority = lookup.PriorityHigh
	}
	result, err := queryJSON[RecordingSearch](ctx, c, lookup.ChannelMetadata, lookup.Request{
		Owner:    owner,
		Key:      c.searchKey("recording", query, q.Limit),
		Priority: priority,
	})
	if err != nil || result == nil {
		return nil, err
	}

	tracks := make([]*Track, 0, len(result.Recordings))
	for _, raw := range result.Recordings {
		tracks = append(tracks, c.adaptRecording(raw, owner))
	}
	return tracks, nil
}

// CoverArt returns the image listing of a release group. A nil result means no art.
func (c *Client) CoverArt(ctx context.Context, owner, mbgid string) (*CoverArt, error) {
	if err := validateID(mbgid); err != nil {
		return nil, err
	}
	return queryJSON[CoverArt](ctx, c, lookup.ChannelCoverArt, lookup.Request{
		Owner: owner,
		Key:   "release-group/" + mbgid,
	})
}

// WikiSummary returns the Wikipedia summary for a page title.
func (c *Client) WikiSummary(ctx context.Context, owner, title string) (*WikiSummary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyQuery
	}
	return queryJSON[WikiSummary](ctx, c, lookup.ChannelWiki, lookup.Request{
		Owner: owner,
		Key:   "page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
	})
}

// Genres lists every genre MusicBrainz knows, in server order.
func (c *Client) Genres(ctx context.Context, owner string) ([]*Genre, error) {
	browse, ok, err := lookup.FetchAll(ctx, c.lookup, c.pageQuery(owner, func(offset, limit int) string {
		return fmt.Sprintf("genre/all?limit=%d&offset=%d&fmt=json", limit, offset)
	}), decodeJSON[GenreBrowse])
	if err != nil || !ok {
		return nil, err
	}

	genres := make([]*Genre, 0, len(browse.Genres))
	for _, raw := range browse.Genres {
		genres = append(genres, adaptGenre(raw))
	}
	return genres, nil
}

// Cancel aborts every queued and in-flight request of owner.
func (c *Client) Cancel(owner string) int {
	return c.lookup.Cancel(owner)
}

func (c *Client) searchKey(entity, query string, limit int) string {
	if limit <= 0 {
		limit = c.cfg.SearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return fmt.Sprintf("%s/?query=%s&limit=%d&fmt=json", entity, url.QueryEscape(query), limit)
}

func (c *Client) pageQuery(owner string, key func(offset, limit int) string) lookup.PageQuery {
	return lookup.PageQuery{
		Channel:  lookup.ChannelMetadata,
		Owner:    owner,
		TTL:      c.cfg.TTL,
		Key:      key,
		PageSize: c.cfg.PageSize,
		MaxPages: c.cfg.MaxPages,
	}
}

// queryJSON runs one request and decodes its payload. A payload that does not fit T
// is treated as no result.
func queryJSON[T any](ctx context.Context, c *Client, channel string, req lookup.Request) (*T, error) {
	if req.TTL == 0 {
		req.TTL = c.cfg.TTL
	}
	resp, err := c.lookup.Query(ctx, channel, req)
	if err != nil || resp == nil {
		return nil, err
	}
	v, err := decodeJSON[T](resp.Body)
	if err != nil {
		c.logger.Warn("unexpected payload shape", "channel", channel, "key", req.Key, "error", err)
		return nil, nil
	}
	return &v, nil
}

func decodeJSON[T any](body []byte) (T, error) {
	var v T
	err := json.Unmarshal(body, &v)
	return v, err
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// firstOfficial returns the first release with official status, or the first release.
func firstOfficial(releases []RawRelease) (RawRelease, bool) {
	for _, release := range releases {
		if strings.EqualFold(release.Status, "Official") {
			return release, true
		}
	}
	if len(releases) > 0 {
		return releases[0], true
	}
	return RawRelease{}, false
}

// sortAlbums orders albums by release date; undated albums go last.
func sortAlbums(albums []*Album) {
	sort.SliceStable(albums, func(i, j int) bool {
		a, b := albums[i].ReleaseDate, albums[j].ReleaseDate
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		return a.Before(b)
	})
}

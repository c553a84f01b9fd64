package musicbrainz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// lazy memoizes the first successful result of a fetch. One caller fetches at a
// time; the others wait on the in-flight call but still honor their own ctx.
// Failures are not remembered.
type lazy[T any] struct {
	mu       sync.Mutex
	done     bool
	val      T
	inflight *lazyCall[T]
}

type lazyCall[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (l *lazy[T]) get(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		l.mu.Lock()
		if l.done {
			l.mu.Unlock()
			return l.val, nil
		}
		if call := l.inflight; call != nil {
			l.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			if call.err != nil {
				// The fetching caller gave up; its failure says nothing about ours.
				if isCanceled(call.err) || errors.Is(call.err, context.DeadlineExceeded) {
					continue
				}
				return zero, call.err
			}
			return call.val, nil
		}
		call := &lazyCall[T]{done: make(chan struct{})}
		l.inflight = call
		l.mu.Unlock()

		call.val, call.err = fetch(ctx)

		l.mu.Lock()
		if call.err == nil {
			l.val = call.val
			l.done = true
		}
		l.inflight = nil
		l.mu.Unlock()
		close(call.done)
		return call.val, call.err
	}
}

// Artist is a MusicBrainz artist.
type Artist struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SortName       string    `json:"sort_name"`
	Type           string    `json:"type,omitempty"`
	Country        string    `json:"country,omitempty"`
	Disambiguation string    `json:"disambiguation,omitempty"`
	Score          int       `json:"score,omitempty"`
	Begin          time.Time `json:"begin,omitzero"`
	Genres         []string  `json:"genres,omitempty"`
	ThumbPath      string    `json:"thumb_path,omitempty"`

	client *Client
	owner  string
	thumb  lazy[string]
	albums lazy[[]*Album]
}

// Thumb returns the artist's Wikipedia thumbnail, fetched on first use.
func (a *Artist) Thumb(ctx context.Context) (string, error) {
	return a.thumb.get(ctx, func(ctx context.Context) (string, error) {
		summary, err := a.client.WikiSummary(ctx, a.owner, a.Name)
		if err != nil || summary == nil || summary.Thumbnail == nil {
			return "", err
		}
		a.ThumbPath = summary.Thumbnail.Source
		return a.ThumbPath, nil
	})
}

// Albums returns the artist's albums and EPs, browsing every page on first use.
func (a *Artist) Albums(ctx context.Context) ([]*Album, error) {
	return a.albums.get(ctx, func(ctx context.Context) ([]*Album, error) {
		return a.client.ArtistAlbums(ctx, a.owner, a.ID)
	})
}

// Album is a release group.
type Album struct {
	ID               string    `json:"id"`
	MBGID            string    `json:"mbgid"`
	Title            string    `json:"title"`
	ArtistID         string    `json:"artist_id,omitempty"`
	ArtistName       string    `json:"artist_name,omitempty"`
	PrimaryType      string    `json:"primary_type,omitempty"`
	SecondaryTypes   []string  `json:"secondary_types,omitempty"`
	FirstReleaseDate string    `json:"first_release_date,omitempty"`
	ReleaseDate      time.Time `json:"release_date,omitzero"`
	Score            int       `json:"score,omitempty"`
	ThumbPath        string    `json:"thumb_path,omitempty"`

	client    *Client
	owner     string
	thumb     lazy[string]
	tracklist lazy[[]*Track]
}

// Thumb returns the front cover thumbnail from the Cover Art Archive.
// An album without art yields an empty path.
func (a *Album) Thumb(ctx context.Context) (string, error) {
	return a.thumb.get(ctx, func(ctx context.Context) (string, error) {
		art, err := a.client.CoverArt(ctx, a.owner, a.MBGID)
		if err != nil || art == nil {
			return "", err
		}
		a.ThumbPath = art.ThumbURL()
		return a.ThumbPath, nil
	})
}

// Tracklist returns the tracks of the album's first official release.
func (a *Album) Tracklist(ctx context.Context) ([]*Track, error) {
	return a.tracklist.get(ctx, func(ctx context.Context) ([]*Track, error) {
		return a.client.ReleaseGroupTracks(ctx, a.owner, a.MBGID)
	})
}

// Track is a track on a release, or a recording search hit.
type Track struct {
	ID          string    `json:"id"`
	MBGID       string    `json:"mbgid,omitempty"`
	ReleaseID   string    `json:"release_id,omitempty"`
	Title       string    `json:"title"`
	Number      string    `json:"number,omitempty"`
	Position    int       `json:"position,omitempty"`
	Disc        int       `json:"disc,omitempty"`
	LengthMs    int       `json:"length_ms,omitempty"`
	ArtistName  string    `json:"artist_name,omitempty"`
	Album       string    `json:"album,omitempty"`
	ReleaseDate time.Time `json:"release_date,omitzero"`
	Score       int       `json:"score,omitempty"`
	ThumbPath   string    `json:"thumb_path,omitempty"`

	client *Client
	owner  string
	thumb  lazy[string]
}

// Thumb returns the cover of the album the track belongs to.
func (t *Track) Thumb(ctx context.Context) (string, error) {
	return t.thumb.get(ctx, func(ctx context.Context) (string, error) {
		if t.MBGID == "" {
			return "", nil
		}
		art, err := t.client.CoverArt(ctx, t.owner, t.MBGID)
		if err != nil || art == nil {
			return "", err
		}
		t.ThumbPath = art.ThumbURL()
		return t.ThumbPath, nil
	})
}

// Genre is a MusicBrainz genre.
type Genre struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Disambiguation string `json:"disambiguation,omitempty"`
}

// ==========================================================================
// Adapters
// ==========================================================================

func (c *Client) adaptArtist(raw RawArtist, owner string) *Artist {
	artist := &Artist{
		ID:             raw.ID,
		Name:           raw.Name,
		SortName:       raw.SortName,
		Type:           raw.Type,
		Country:        raw.Country,
		Disambiguation: raw.Disambiguation,
		Score:          raw.Score,
		client:         c,
		owner:          owner,
	}
	if begin, ok := ParseDate(raw.LifeSpan.Begin); ok {
		artist.Begin = begin
	}
	for _, genre := range raw.Genres {
		artist.Genres = append(artist.Genres, genre.Name)
	}
	return artist
}

func (c *Client) adaptAlbum(raw RawReleaseGroup, owner string) *Album {
	album := &Album{
		ID:               raw.ID,
		MBGID:            raw.ID,
		Title:            raw.Title,
		PrimaryType:      raw.PrimaryType,
		SecondaryTypes:   raw.SecondaryTypes,
		FirstReleaseDate: raw.FirstReleaseDate,
		Score:            raw.Score,
		client:           c,
		owner:            owner,
	}
	if date, ok := ParseDate(raw.FirstReleaseDate); ok {
		album.ReleaseDate = date
	}
	if len(raw.ArtistCredit) > 0 {
		album.ArtistID = raw.ArtistCredit[0].Artist.ID
		album.ArtistName = creditName(raw.ArtistCredit)
	}
	return album
}

func (c *Client) adaptTrack(raw RawTrack, medium Medium, release RawRelease, mbgid, owner string) *Track {
	length := raw.Length
	if length == 0 {
		length = raw.Recording.Length
	}
	track := &Track{
		ID:         raw.Recording.ID,
		MBGID:      mbgid,
		ReleaseID:  release.ID,
		Title:      raw.Title,
		Number:     raw.Number,
		Position:   raw.Position,
		Disc:       medium.Position,
		LengthMs:   length,
		ArtistName: creditName(raw.Recording.ArtistCredit),
		Album:      release.Title,
		client:     c,
		owner:      owner,
	}
	if track.ID == "" {
		track.ID = raw.ID
	}
	if date, ok := ParseDate(release.Date); ok {
		track.ReleaseDate = date
	}
	return track
}

func (c *Client) adaptRecording(raw RawRecording, owner string) *Track {
	track := &Track{
		ID:         raw.ID,
		Title:      raw.Title,
		LengthMs:   raw.Length,
		ArtistName: creditName(raw.ArtistCredit),
		Score:      raw.Score,
		client:     c,
		owner:      owner,
	}
	if release, ok := preferredRelease(raw.Releases); ok {
		track.ReleaseID = release.ID
		track.Album = release.Title
		if release.ReleaseGroup != nil {
			track.MBGID = release.ReleaseGroup.ID
		}
		if date, ok := ParseDate(release.Date); ok {
			track.ReleaseDate = date
		}
	}
	return track
}

func adaptGenre(raw RawGenre) *Genre {
	return &Genre{ID: raw.ID, Name: raw.Name, Disambiguation: raw.Disambiguation}
}

// creditName renders an artist credit the way MusicBrainz displays it.
func creditName(credits []ArtistCredit) string {
	var sb strings.Builder
	for _, credit := range credits {
		name := credit.Name
		if name == "" {
			name = credit.Artist.Name
		}
		sb.WriteString(name)
		sb.WriteString(credit.JoinPhrase)
	}
	return sb.String()
}

// preferredRelease picks the first official album release, then the first official
// release, then the first release.
func preferredRelease(releases []RawRelease) (RawRelease, bool) {
	if len(releases) == 0 {
		return RawRelease{}, false
	}
	for _, release := range releases {
		if strings.EqualFold(release.Status, "Official") && release.ReleaseGroup != nil &&
			strings.EqualFold(release.ReleaseGroup.PrimaryType, "Album") {
			return release, true
		}
	}
	for _, release := range releases {
		if strings.EqualFold(release.Status, "Official") {
			return release, true
		}
	}
	return releases[0], true
}

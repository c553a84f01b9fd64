package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/metalookup-go/internal/lookup"
)

func searchKeyFor(entity, query string, limit int) string {
	return fmt.Sprintf("%s/?query=%s&limit=%d&fmt=json", entity, url.QueryEscape(query), limit)
}

func albumsKey(offset, limit int) string {
	return fmt.Sprintf("release-group?artist=%s&type=album|ep&limit=%d&offset=%d&fmt=json", testArtistID, limit, offset)
}

func releasesKey(offset, limit int) string {
	return fmt.Sprintf("release?release-group=%s&inc=recordings+artist-credits+media&limit=%d&offset=%d&fmt=json",
		testGroupID, limit, offset)
}

// ==========================================================================
// Artists
// ==========================================================================

func TestFindArtist(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, searchKeyFor("artist", "artist:(Beatles)", DefaultSearchLimit), `{
		"created": "2024-01-01T00:00:00.000Z", "count": 1, "offset": 0,
		"artists": [{
			"id": "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d", "name": "The Beatles", "sort-name": "Beatles, The",
			"type": "Group", "country": "GB", "score": 100, "life-span": {"begin": "1960"}
		}]
	}`)
	client := newTestClient(f)

	artists, err := client.FindArtist(context.Background(), "owner-1", "The Beatles")
	require.NoError(t, err)
	require.Len(t, artists, 1)

	artist := artists[0]
	assert.Equal(t, "The Beatles", artist.Name)
	assert.Equal(t, "Beatles, The", artist.SortName)
	assert.Equal(t, "GB", artist.Country)
	assert.Equal(t, 100, artist.Score)
	assert.Equal(t, 1960, artist.Begin.Year())

	calls := f.callsTo("artist/")
	require.Len(t, calls, 1)
	assert.Equal(t, "owner-1", calls[0].Owner)
	assert.Equal(t, lookup.PriorityHigh, calls[0].Priority)
}

func TestFindArtist_EmptyName(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	_, err := client.FindArtist(context.Background(), "owner-1", "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, f.calls)
}

func TestFindArtist_NoResult(t *testing.T) {
	client := newTestClient(newFakeLookup())

	artists, err := client.FindArtist(context.Background(), "owner-1", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, artists)
}

func TestGetArtist(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, "artist/"+testArtistID+"?inc=genres&fmt=json", `{
		"id": "`+testArtistID+`", "name": "Nirvana", "sort-name": "Nirvana",
		"genres": [{"name": "grunge", "count": 12}, {"name": "rock", "count": 8}]
	}`)
	client := newTestClient(f)

	artist, err := client.GetArtist(context.Background(), "owner-1", testArtistID)
	require.NoError(t, err)
	require.NotNil(t, artist)
	assert.Equal(t, "Nirvana", artist.Name)
	assert.Equal(t, []string{"grunge", "rock"}, artist.Genres)
	assert.True(t, artist.Begin.IsZero())
}

func TestGetArtist_InvalidID(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	for _, id := range []string{"", "not-a-uuid", "{" + testArtistID + "}", "urn:uuid:" + testArtistID} {
		_, err := client.GetArtist(context.Background(), "owner-1", id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
	assert.Empty(t, f.calls)
}

func TestGetArtist_MalformedPayloadIsNoResult(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, "artist/"+testArtistID+"?inc=genres&fmt=json", `["not", "an", "artist"]`)
	client := newTestClient(f)

	artist, err := client.GetArtist(context.Background(), "owner-1", testArtistID)
	require.NoError(t, err)
	assert.Nil(t, artist)
}

func TestGetArtist_PropagatesLookupErrors(t *testing.T) {
	f := newFakeLookup()
	remote := &lookup.RemoteError{Channel: lookup.ChannelMetadata, Message: "Invalid mbid."}
	f.fail(lookup.ChannelMetadata, "artist/"+testArtistID+"?inc=genres&fmt=json", remote)
	client := newTestClient(f)

	_, err := client.GetArtist(context.Background(), "owner-1", testArtistID)
	var remoteErr *lookup.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "Invalid mbid.", remoteErr.Message)
}

// ==========================================================================
// Albums
// ==========================================================================

func TestSearchReleaseGroups(t *testing.T) {
	f := newFakeLookup()
	query := "releasegroup:(Abbey Road) AND artist:(Beatles)"
	f.on(lookup.ChannelMetadata, searchKeyFor("release-group", query, 5), `{
		"created": "2024-01-01T00:00:00.000Z", "count": 1, "offset": 0,
		"release-groups": [{
			"id": "`+testGroupID+`", "title": "Abbey Road", "primary-type": "Album",
			"first-release-date": "1969-09-26", "score": 100,
			"artist-credit": [{"name": "The Beatles", "artist": {"id": "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d", "name": "The Beatles"}}]
		}]
	}`)
	client := newTestClient(f)

	albums, err := client.SearchReleaseGroups(context.Background(), "owner-1", AlbumQuery{
		Title:  "Abbey Road (Remastered)",
		Artist: "The Beatles",
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, albums, 1)

	album := albums[0]
	assert.Equal(t, testGroupID, album.ID)
	assert.Equal(t, album.ID, album.MBGID)
	assert.Equal(t, "The Beatles", album.ArtistName)
	assert.Equal(t, "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d", album.ArtistID)
	assert.Equal(t, 1969, album.ReleaseDate.Year())
}

func TestSearchReleaseGroups_LimitIsCapped(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	_, err := client.SearchReleaseGroups(context.Background(), "owner-1", AlbumQuery{Title: "Help", Limit: 500})
	require.NoError(t, err)

	calls := f.callsTo("release-group/")
	require.Len(t, calls, 1)
	assert.Equal(t, searchKeyFor("release-group", "releasegroup:(Help)", MaxSearchLimit), calls[0].Key)
}

func TestSearchReleaseGroups_EmptyQuery(t *testing.T) {
	client := newTestClient(newFakeLookup())

	_, err := client.SearchReleaseGroups(context.Background(), "owner-1", AlbumQuery{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestArtistAlbums_BrowsesEveryPage(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, albumsKey(0, 2), `{
		"release-group-count": 3, "release-group-offset": 0,
		"release-groups": [
			{"id": "11111111-1111-1111-1111-111111111111", "title": "Later", "first-release-date": "1995-04"},
			{"id": "22222222-2222-2222-2222-222222222222", "title": "Undated"}
		]
	}`)
	f.on(lookup.ChannelMetadata, albumsKey(2, 2), `{
		"release-group-count": 3, "release-group-offset": 2,
		"release-groups": [
			{"id": "33333333-3333-3333-3333-333333333333", "title": "Earliest", "first-release-date": "1989-06-15"},
			{"id": "11111111-1111-1111-1111-111111111111", "title": "Later", "first-release-date": "1995-04"}
		]
	}`)
	client := NewClient(f, ClientConfig{PageSize: 2}, hclog.NewNullLogger())

	albums, err := client.ArtistAlbums(context.Background(), "owner-1", testArtistID)
	require.NoError(t, err)
	require.Len(t, albums, 3)

	assert.Equal(t, "Earliest", albums[0].Title)
	assert.Equal(t, "Later", albums[1].Title)
	assert.Equal(t, "Undated", albums[2].Title)
	for _, album := range albums {
		assert.Equal(t, testArtistID, album.ArtistID)
	}
	assert.Len(t, f.callsTo("release-group?"), 2)
}

func TestArtistAlbums_NoResult(t *testing.T) {
	client := newTestClient(newFakeLookup())

	albums, err := client.ArtistAlbums(context.Background(), "owner-1", testArtistID)
	require.NoError(t, err)
	assert.Nil(t, albums)
}

func TestArtistAlbums_FailureAfterFirstPage(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, albumsKey(0, 2), `{
		"release-group-count": 4,
		"release-groups": [{"id": "a", "title": "A"}, {"id": "b", "title": "B"}]
	}`)
	f.fail(lookup.ChannelMetadata, albumsKey(2, 2), lookup.ErrCanceled)
	client := NewClient(f, ClientConfig{PageSize: 2}, hclog.NewNullLogger())

	albums, err := client.ArtistAlbums(context.Background(), "owner-1", testArtistID)
	require.ErrorIs(t, err, lookup.ErrCanceled)
	assert.Nil(t, albums)
}

// ==========================================================================
// Tracks and recordings
// ==========================================================================

const releasesPage = `{
	"release-count": 2, "release-offset": 0,
	"releases": [
		{"id": "bootleg-release", "title": "Live Bootleg", "status": "Bootleg", "media": []},
		{
			"id": "official-release", "title": "Nevermind", "status": "Official", "date": "1991-09-24",
			"media": [
				{"position": 1, "track-count": 2, "tracks": [
					{"id": "t1", "number": "1", "position": 1, "title": "Smells Like Teen Spirit", "length": 301920,
					 "recording": {"id": "rec-1", "title": "Smells Like Teen Spirit",
					   "artist-credit": [{"name": "Nirvana", "artist": {"id": "a", "name": "Nirvana"}}]}},
					{"id": "t2", "number": "2", "position": 2, "title": "In Bloom",
					 "recording": {"id": "rec-2", "title": "In Bloom", "length": 255080,
					   "artist-credit": [{"name": "Nirvana", "joinphrase": " feat. ", "artist": {"id": "a"}}, {"name": "Guest", "artist": {"id": "b"}}]}}
				]},
				{"position": 2, "track-count": 1, "tracks": [
					{"id": "t3", "number": "1", "position": 1, "title": "Bonus", "recording": {"id": "rec-3"}}
				]}
			]
		}
	]
}`

func TestReleaseGroupTracks(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, releasesKey(0, lookup.DefaultPageSize), releasesPage)
	client := newTestClient(f)

	tracks, err := client.ReleaseGroupTracks(context.Background(), "owner-1", testGroupID)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	first := tracks[0]
	assert.Equal(t, "rec-1", first.ID)
	assert.Equal(t, testGroupID, first.MBGID)
	assert.Equal(t, "official-release", first.ReleaseID)
	assert.Equal(t, "Nevermind", first.Album)
	assert.Equal(t, 301920, first.LengthMs)
	assert.Equal(t, 1, first.Disc)
	assert.Equal(t, 1991, first.ReleaseDate.Year())

	second := tracks[1]
	assert.Equal(t, 255080, second.LengthMs, "falls back to the recording length")
	assert.Equal(t, "Nirvana feat. Guest", second.ArtistName)

	assert.Equal(t, 2, tracks[2].Disc)
	assert.Equal(t, 1, tracks[2].Position)
}

func TestReleaseGroupTracks_NoReleases(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, releasesKey(0, lookup.DefaultPageSize), `{"release-count": 0, "releases": []}`)
	client := newTestClient(f)

	tracks, err := client.ReleaseGroupTracks(context.Background(), "owner-1", testGroupID)
	require.NoError(t, err)
	assert.Nil(t, tracks)
}

func TestSearchRecordings(t *testing.T) {
	f := newFakeLookup()
	query := "recording:(Come As You Are) AND artist:(Nirvana) AND release:(Nevermind)"
	f.on(lookup.ChannelMetadata, searchKeyFor("recording", query, DefaultSearchLimit), `{
		"created": "2024-01-01T00:00:00.000Z", "count": 1,
		"recordings": [{
			"id": "rec-4", "title": "Come As You Are", "length": 218920, "score": 97,
			"artist-credit": [{"name": "Nirvana", "artist": {"id": "a"}}],
			"releases": [
				{"id": "comp", "title": "Greatest Hits", "status": "Official", "date": "2002",
				 "release-group": {"id": "g-comp", "title": "Greatest Hits", "primary-type": "Compilation"}},
				{"id": "album", "title": "Nevermind", "status": "Official", "date": "1991-09-24",
				 "release-group": {"id": "g-album", "title": "Nevermind", "primary-type": "Album"}}
			]
		}]
	}`)
	client := newTestClient(f)

	tracks, err := client.SearchRecordings(context.Background(), "job-1", RecordingQuery{
		Title:  "Come As You Are",
		Artist: "Nirvana",
		Album:  "Nevermind",
	})
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	track := tracks[0]
	assert.Equal(t, "album", track.ReleaseID)
	assert.Equal(t, "g-album", track.MBGID)
	assert.Equal(t, "Nevermind", track.Album)
	assert.Equal(t, 97, track.Score)

	calls := f.callsTo("recording/")
	require.Len(t, calls, 1)
	assert.Equal(t, lookup.PriorityNormal, calls[0].Priority)
}

func TestSearchRecordings_InteractiveIsHighPriority(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	_, err := client.SearchRecordings(context.Background(), "owner-1", RecordingQuery{Title: "Lithium", Interactive: true})
	require.NoError(t, err)

	calls := f.callsTo("recording/")
	require.Len(t, calls, 1)
	assert.Equal(t, lookup.PriorityHigh, calls[0].Priority)
}

func TestPreferredRelease(t *testing.T) {
	_, ok := preferredRelease(nil)
	assert.False(t, ok)

	release, ok := preferredRelease([]RawRelease{{ID: "promo", Status: "Promotion"}, {ID: "official", Status: "Official"}})
	require.True(t, ok)
	assert.Equal(t, "official", release.ID)

	release, ok = preferredRelease([]RawRelease{{ID: "bootleg", Status: "Bootleg"}})
	require.True(t, ok)
	assert.Equal(t, "bootleg", release.ID)
}

// ==========================================================================
// Cover art, wiki and genres
// ==========================================================================

const coverArtPayload = `{
	"release": "https://musicbrainz.org/release/official-release",
	"images": [
		{"image": "https://img.test/back.jpg", "back": true, "thumbnails": {"250": "https://img.test/back-250.jpg"}},
		{"image": "https://img.test/front.jpg", "front": true, "thumbnails": {"250": "https://img.test/front-250.jpg", "500": "https://img.test/front-500.jpg"}}
	]
}`

func TestCoverArt(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelCoverArt, "release-group/"+testGroupID, coverArtPayload)
	client := newTestClient(f)

	art, err := client.CoverArt(context.Background(), "owner-1", testGroupID)
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "https://img.test/front-500.jpg", art.ThumbURL())

	none, err := client.CoverArt(context.Background(), "owner-1", "44444444-4444-4444-4444-444444444444")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, "", none.ThumbURL())
}

func TestCoverArt_ThumbFallback(t *testing.T) {
	art := &CoverArt{Images: []CoverArtImage{{Image: "https://img.test/only.jpg"}}}
	assert.Equal(t, "https://img.test/only.jpg", art.ThumbURL())

	art = &CoverArt{Images: []CoverArtImage{{Image: "x", Thumbnails: Thumbnails{Small: "small", Size250: "250"}}}}
	assert.Equal(t, "250", art.ThumbURL())
}

func TestWikiSummary(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelWiki, "page/summary/Pink_Floyd", `{
		"type": "standard", "title": "Pink Floyd", "extract": "Pink Floyd were an English rock band.",
		"thumbnail": {"source": "https://upload.test/pf.jpg", "width": 320, "height": 213},
		"content_urls": {"desktop": {"page": "https://en.wikipedia.org/wiki/Pink_Floyd"}}
	}`)
	client := newTestClient(f)

	summary, err := client.WikiSummary(context.Background(), "owner-1", " Pink Floyd ")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Pink Floyd", summary.Title)
	require.NotNil(t, summary.Thumbnail)
	assert.Equal(t, "https://upload.test/pf.jpg", summary.Thumbnail.Source)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Pink_Floyd", summary.ContentURLs.Desktop.Page)

	_, err = client.WikiSummary(context.Background(), "owner-1", "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestWikiSummary_EscapesTitle(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	_, err := client.WikiSummary(context.Background(), "owner-1", "AC/DC")
	require.NoError(t, err)

	calls := f.callsTo("page/summary/")
	require.Len(t, calls, 1)
	assert.Equal(t, "page/summary/AC%2FDC", calls[0].Key)
	assert.Equal(t, lookup.ChannelWiki, calls[0].Channel)
}

func TestGenres(t *testing.T) {
	f := newFakeLookup()
	f.on(lookup.ChannelMetadata, "genre/all?limit=2&offset=0&fmt=json", `{
		"genre-count": 3, "genre-offset": 0,
		"genres": [{"id": "g1", "name": "acid jazz"}, {"id": "g2", "name": "blues"}]
	}`)
	f.on(lookup.ChannelMetadata, "genre/all?limit=2&offset=2&fmt=json", `{
		"genre-count": 3, "genre-offset": 2,
		"genres": [{"id": "g3", "name": "country", "disambiguation": "music genre"}]
	}`)
	client := NewClient(f, ClientConfig{PageSize: 2}, hclog.NewNullLogger())

	genres, err := client.Genres(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, genres, 3)
	assert.Equal(t, "acid jazz", genres[0].Name)
	assert.Equal(t, "music genre", genres[2].Disambiguation)
}

func TestCancel_Delegates(t *testing.T) {
	f := newFakeLookup()
	client := newTestClient(f)

	assert.Equal(t, 2, client.Cancel("owner-9"))
	assert.Equal(t, []string{"owner-9"}, f.canceled)
}

// ==========================================================================
// Through the lookup engine
// ==========================================================================

func TestClient_ThroughLookupService(t *testing.T) {
	var calls atomic.Int32
	transport := lookup.TransportFunc(func(ctx context.Context, rawURL string) ([]byte, int, error) {
		n := calls.Add(1)
		if n == 1 {
			return nil, 503, errors.New("service unavailable")
		}
		assert.Contains(t, rawURL, "https://mb.test/ws/2/artist/?query=")
		return []byte(`{"created": "2024-01-01T00:00:00.000Z", "count": 1,
			"artists": [{"id": "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d", "name": "The Beatles"}]}`), 200, nil
	})
	svc := lookup.NewService(lookup.ServiceConfig{
		Channels: []lookup.ChannelConfig{
			{Name: lookup.ChannelMetadata, BaseURL: "https://mb.test/ws/2/"},
		},
		Transport: transport,
		CacheFor: func(string) lookup.Cache {
			return lookup.NewMemoryCache(0)
		},
	}, hclog.NewNullLogger())
	t.Cleanup(svc.Close)

	client := NewClient(svc, ClientConfig{}, hclog.NewNullLogger())

	artists, err := client.FindArtist(context.Background(), "owner-1", "The Beatles")
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, "The Beatles", artists[0].Name)
	assert.Equal(t, int32(2), calls.Load(), "transport failure is retried once")

	again, err := client.FindArtist(context.Background(), "owner-1", "The Beatles")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, int32(2), calls.Load(), "second lookup is served from the cache")
}

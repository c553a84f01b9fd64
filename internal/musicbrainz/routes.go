package musicbrainz

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/apperrors"
	"github.com/strefethen/metalookup-go/internal/auth"
	"github.com/strefethen/metalookup-go/internal/lookup"
)

// StatsProvider reports per-channel queue state.
type StatsProvider interface {
	Stats() []lookup.ChannelStats
}

// RegisterRoutes wires metadata lookup routes to the router.
// stats is optional - if nil, /v1/lookup/stats returns 503.
func RegisterRoutes(router chi.Router, client *Client, stats StatsProvider) {
	router.Method(http.MethodGet, "/v1/artists", api.Handler(findArtists(client)))
	router.Method(http.MethodGet, "/v1/artists/{id}", api.Handler(getArtist(client)))
	router.Method(http.MethodGet, "/v1/artists/{id}/albums", api.Handler(listArtistAlbums(client)))
	router.Method(http.MethodGet, "/v1/artists/{id}/albums/latest", api.Handler(latestArtistAlbum(client)))

	router.Method(http.MethodGet, "/v1/albums", api.Handler(searchAlbums(client)))
	router.Method(http.MethodGet, "/v1/albums/{mbgid}/tracks", api.Handler(listAlbumTracks(client)))
	router.Method(http.MethodGet, "/v1/albums/{mbgid}/cover", api.Handler(getAlbumCover(client)))

	router.Method(http.MethodGet, "/v1/recordings", api.Handler(searchRecordings(client)))
	router.Method(http.MethodGet, "/v1/genres", api.Handler(listGenres(client)))
	router.Method(http.MethodGet, "/v1/wiki/{title}", api.Handler(getWikiSummary(client)))

	router.Method(http.MethodDelete, "/v1/owners/{owner}/requests", api.Handler(cancelOwner(client)))
	router.Method(http.MethodGet, "/v1/lookup/stats", api.Handler(lookupStats(stats)))
}

type artistResource struct {
	Object string `json:"object"`
	*Artist
}

type albumResource struct {
	Object string `json:"object"`
	*Album
}

type trackResource struct {
	Object string `json:"object"`
	*Track
}

type genreResource struct {
	Object string `json:"object"`
	*Genre
}

// findArtists handles GET /v1/artists?name=
func findArtists(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		name := r.URL.Query().Get("name")
		if name == "" {
			return apperrors.NewValidationError("name is required", nil)
		}

		artists, err := client.FindArtist(r.Context(), auth.Owner(r), name)
		if err != nil {
			return lookupError(err)
		}

		data := make([]artistResource, 0, len(artists))
		for _, artist := range artists {
			data = append(data, artistResource{Object: api.ObjectArtist, Artist: artist})
		}
		return api.WriteList(w, "/v1/artists", data, false)
	}
}

// getArtist handles GET /v1/artists/{id}
// ?include=thumb resolves the Wikipedia thumbnail before responding.
func getArtist(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		artist, err := client.GetArtist(r.Context(), auth.Owner(r), id)
		if err != nil {
			return lookupError(err)
		}
		if artist == nil {
			return apperrors.NewNotFoundResource("artist", id)
		}

		if r.URL.Query().Get("include") == "thumb" {
			// A missing thumbnail does not fail the artist lookup.
			if _, err := artist.Thumb(r.Context()); err != nil && isCanceled(err) {
				return lookupError(err)
			}
		}
		return api.WriteResource(w, http.StatusOK, artistResource{Object: api.ObjectArtist, Artist: artist})
	}
}

// listArtistAlbums handles GET /v1/artists/{id}/albums
func listArtistAlbums(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		albums, err := client.ArtistAlbums(r.Context(), auth.Owner(r), id)
		if err != nil {
			return lookupError(err)
		}

		data := make([]albumResource, 0, len(albums))
		for _, album := range albums {
			data = append(data, albumResource{Object: api.ObjectAlbum, Album: album})
		}
		return api.WriteList(w, "/v1/artists/"+id+"/albums", data, false)
	}
}

// latestArtistAlbum handles GET /v1/artists/{id}/albums/latest
func latestArtistAlbum(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		albums, err := client.ArtistAlbums(r.Context(), auth.Owner(r), id)
		if err != nil {
			return lookupError(err)
		}

		latest := LatestAlbum(albums)
		if latest == nil {
			return apperrors.NewNotFoundError("artist has no dated albums", map[string]any{"id": id})
		}
		return api.WriteResource(w, http.StatusOK, albumResource{Object: api.ObjectAlbum, Album: latest})
	}
}

// searchAlbums handles GET /v1/albums?title=&artist=&limit=
func searchAlbums(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		query := r.URL.Query()
		limit, err := parseLimit(query.Get("limit"))
		if err != nil {
			return err
		}

		albums, err := client.SearchReleaseGroups(r.Context(), auth.Owner(r), AlbumQuery{
			Title:  query.Get("title"),
			Artist: query.Get("artist"),
			Limit:  limit,
		})
		if err != nil {
			return lookupError(err)
		}

		data := make([]albumResource, 0, len(albums))
		for _, album := range albums {
			data = append(data, albumResource{Object: api.ObjectAlbum, Album: album})
		}
		return api.WriteList(w, "/v1/albums", data, false)
	}
}

// listAlbumTracks handles GET /v1/albums/{mbgid}/tracks
func listAlbumTracks(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		mbgid := chi.URLParam(r, "mbgid")
		tracks, err := client.ReleaseGroupTracks(r.Context(), auth.Owner(r), mbgid)
		if err != nil {
			return lookupError(err)
		}

		data := make([]trackResource, 0, len(tracks))
		for _, track := range tracks {
			data = append(data, trackResource{Object: api.ObjectTrack, Track: track})
		}
		return api.WriteList(w, "/v1/albums/"+mbgid+"/tracks", data, false)
	}
}

// getAlbumCover handles GET /v1/albums/{mbgid}/cover
func getAlbumCover(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		mbgid := chi.URLParam(r, "mbgid")
		art, err := client.CoverArt(r.Context(), auth.Owner(r), mbgid)
		if err != nil {
			return lookupError(err)
		}
		if art == nil || len(art.Images) == 0 {
			return apperrors.NewNotFoundResource("cover art", mbgid)
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":    api.ObjectCoverArt,
			"mbgid":     mbgid,
			"thumb_url": art.ThumbURL(),
			"release":   art.Release,
			"images":    art.Images,
		})
	}
}

// searchRecordings handles GET /v1/recordings?title=&artist=&album=&limit=
func searchRecordings(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		query := r.URL.Query()
		limit, err := parseLimit(query.Get("limit"))
		if err != nil {
			return err
		}

		tracks, err := client.SearchRecordings(r.Context(), auth.Owner(r), RecordingQuery{
			Title:       query.Get("title"),
			Artist:      query.Get("artist"),
			Album:       query.Get("album"),
			Limit:       limit,
			Interactive: true,
		})
		if err != nil {
			return lookupError(err)
		}

		data := make([]trackResource, 0, len(tracks))
		for _, track := range tracks {
			data = append(data, trackResource{Object: api.ObjectTrack, Track: track})
		}
		return api.WriteList(w, "/v1/recordings", data, false)
	}
}

// listGenres handles GET /v1/genres
func listGenres(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		genres, err := client.Genres(r.Context(), auth.Owner(r))
		if err != nil {
			return lookupError(err)
		}

		data := make([]genreResource, 0, len(genres))
		for _, genre := range genres {
			data = append(data, genreResource{Object: api.ObjectGenre, Genre: genre})
		}
		return api.WriteList(w, "/v1/genres", data, false)
	}
}

// getWikiSummary handles GET /v1/wiki/{title}
func getWikiSummary(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		title := chi.URLParam(r, "title")
		summary, err := client.WikiSummary(r.Context(), auth.Owner(r), title)
		if err != nil {
			return lookupError(err)
		}
		if summary == nil {
			return apperrors.NewNotFoundResource("wiki page", title)
		}

		resource := map[string]any{
			"object":      api.ObjectWikiSummary,
			"title":       summary.Title,
			"description": summary.Description,
			"extract":     summary.Extract,
			"page_url":    summary.ContentURLs.Desktop.Page,
		}
		if summary.Thumbnail != nil {
			resource["thumb_url"] = summary.Thumbnail.Source
		}
		return api.WriteResource(w, http.StatusOK, resource)
	}
}

// cancelOwner handles DELETE /v1/owners/{owner}/requests
func cancelOwner(client *Client) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		owner := chi.URLParam(r, "owner")
		if owner == "" {
			return apperrors.NewValidationError("owner is required", nil)
		}

		canceled := client.Cancel(owner)
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":   api.ObjectCancellation,
			"owner":    owner,
			"canceled": canceled,
		})
	}
}

// lookupStats handles GET /v1/lookup/stats
func lookupStats(stats StatsProvider) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if stats == nil {
			return apperrors.NewUnavailableError("lookup stats are not available")
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":   api.ObjectLookupStats,
			"channels": stats.Stats(),
		})
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxSearchLimit {
		return 0, apperrors.NewValidationError("limit must be between 1 and 100", map[string]any{"limit": raw})
	}
	return limit, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, lookup.ErrCanceled) || errors.Is(err, context.Canceled)
}

// lookupError maps lookup and client errors onto API errors.
func lookupError(err error) error {
	var (
		transportErr *lookup.TransportError
		remoteErr    *lookup.RemoteError
	)
	switch {
	case errors.Is(err, ErrInvalidID):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, ErrEmptyQuery):
		return apperrors.NewValidationError("at least one search term is required", nil)
	case isCanceled(err):
		return apperrors.NewCanceledError("lookup was canceled")
	case errors.Is(err, lookup.ErrClosed):
		return apperrors.NewUnavailableError("lookup service is shutting down")
	case errors.As(err, &transportErr):
		return apperrors.NewUpstreamError("metadata service is unavailable", transportErr.Code)
	case errors.As(err, &remoteErr):
		return apperrors.NewRemoteRejectedError("metadata service rejected the query: " + remoteErr.Message)
	default:
		return apperrors.NewInternalError("lookup failed")
	}
}

package musicbrainz

// ==========================================================================
// Wire models for the MusicBrainz ws/2 JSON API
// ==========================================================================

// ArtistCredit names one credited artist.
type ArtistCredit struct {
	Name       string     `json:"name"`
	JoinPhrase string     `json:"joinphrase,omitempty"`
	Artist     ArtistStub `json:"artist"`
}

// ArtistStub is the artist embedded in credits.
type ArtistStub struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name,omitempty"`
}

// LifeSpan is an artist's active period.
type LifeSpan struct {
	Begin string `json:"begin,omitempty"`
	End   string `json:"end,omitempty"`
	Ended bool   `json:"ended,omitempty"`
}

// Tag is a folksonomy tag or genre with its vote count.
type Tag struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RawArtist is an artist as returned by search and lookup.
type RawArtist struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	SortName       string   `json:"sort-name"`
	Type           string   `json:"type,omitempty"`
	Country        string   `json:"country,omitempty"`
	Disambiguation string   `json:"disambiguation,omitempty"`
	Score          int      `json:"score,omitempty"`
	LifeSpan       LifeSpan `json:"life-span"`
	Tags           []Tag    `json:"tags,omitempty"`
	Genres         []Tag    `json:"genres,omitempty"`
}

// ArtistSearch is the envelope of artist/?query=.
type ArtistSearch struct {
	Created string      `json:"created"`
	Count   int         `json:"count"`
	Offset  int         `json:"offset"`
	Artists []RawArtist `json:"artists"`
}

// RawReleaseGroup is a release group (an "album" in the host's vocabulary).
type RawReleaseGroup struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	PrimaryType      string         `json:"primary-type,omitempty"`
	SecondaryTypes   []string       `json:"secondary-types,omitempty"`
	FirstReleaseDate string         `json:"first-release-date,omitempty"`
	Score            int            `json:"score,omitempty"`
	ArtistCredit     []ArtistCredit `json:"artist-credit,omitempty"`
}

// ReleaseGroupSearch is the envelope of release-group/?query=.
type ReleaseGroupSearch struct {
	Created       string            `json:"created"`
	Count         int               `json:"count"`
	Offset        int               `json:"offset"`
	ReleaseGroups []RawReleaseGroup `json:"release-groups"`
}

// ReleaseGroupBrowse is one page of release-group?artist=.
type ReleaseGroupBrowse struct {
	Count         *int              `json:"release-group-count"`
	Offset        int               `json:"release-group-offset"`
	ReleaseGroups []RawReleaseGroup `json:"release-groups"`
}

func (p ReleaseGroupBrowse) PageTotal() (int, bool) { return total(p.Count) }
func (p ReleaseGroupBrowse) PageLen() int           { return len(p.ReleaseGroups) }

func (p ReleaseGroupBrowse) Merge(next ReleaseGroupBrowse) ReleaseGroupBrowse {
	p.ReleaseGroups = append(p.ReleaseGroups, next.ReleaseGroups...)
	if next.Count != nil {
		p.Count = next.Count
	}
	return p
}

// RawRecording is a recording as embedded in tracks or returned by search.
type RawRecording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Length       int            `json:"length,omitempty"`
	Score        int            `json:"score,omitempty"`
	ArtistCredit []ArtistCredit `json:"artist-credit,omitempty"`
	Releases     []RawRelease   `json:"releases,omitempty"`
}

// RawTrack is one track on a medium.
type RawTrack struct {
	ID        string       `json:"id"`
	Number    string       `json:"number"`
	Position  int          `json:"position"`
	Title     string       `json:"title"`
	Length    int          `json:"length,omitempty"`
	Recording RawRecording `json:"recording"`
}

// Medium is a disc or other physical unit of a release.
type Medium struct {
	Position   int        `json:"position"`
	Format     string     `json:"format,omitempty"`
	Title      string     `json:"title,omitempty"`
	TrackCount int        `json:"track-count"`
	Tracks     []RawTrack `json:"tracks,omitempty"`
}

// RawRelease is one concrete release of a release group.
type RawRelease struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Status       string           `json:"status,omitempty"`
	Date         string           `json:"date,omitempty"`
	Country      string           `json:"country,omitempty"`
	Media        []Medium         `json:"media,omitempty"`
	ReleaseGroup *RawReleaseGroup `json:"release-group,omitempty"`
}

// ReleaseBrowse is one page of release?release-group=.
type ReleaseBrowse struct {
	Count    *int         `json:"release-count"`
	Offset   int          `json:"release-offset"`
	Releases []RawRelease `json:"releases"`
}

func (p ReleaseBrowse) PageTotal() (int, bool) { return total(p.Count) }
func (p ReleaseBrowse) PageLen() int           { return len(p.Releases) }

func (p ReleaseBrowse) Merge(next ReleaseBrowse) ReleaseBrowse {
	p.Releases = append(p.Releases, next.Releases...)
	if next.Count != nil {
		p.Count = next.Count
	}
	return p
}

// RecordingSearch is the envelope of recording/?query=.
type RecordingSearch struct {
	Created    string         `json:"created"`
	Count      int            `json:"count"`
	Offset     int            `json:"offset"`
	Recordings []RawRecording `json:"recordings"`
}

// RawGenre is an entry of genre/all.
type RawGenre struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Disambiguation string `json:"disambiguation,omitempty"`
}

// GenreBrowse is one page of genre/all.
type GenreBrowse struct {
	Count  *int       `json:"genre-count"`
	Offset int        `json:"genre-offset"`
	Genres []RawGenre `json:"genres"`
}

func (p GenreBrowse) PageTotal() (int, bool) { return total(p.Count) }
func (p GenreBrowse) PageLen() int           { return len(p.Genres) }

func (p GenreBrowse) Merge(next GenreBrowse) GenreBrowse {
	p.Genres = append(p.Genres, next.Genres...)
	if next.Count != nil {
		p.Count = next.Count
	}
	return p
}

func total(count *int) (int, bool) {
	if count == nil {
		return 0, false
	}
	return *count, true
}

// ==========================================================================
// Cover Art Archive
// ==========================================================================

// CoverArt is the image listing for a release or release group.
type CoverArt struct {
	Release string          `json:"release"`
	Images  []CoverArtImage `json:"images"`
}

// CoverArtImage is one archived image.
type CoverArtImage struct {
	Image      string     `json:"image"`
	Front      bool       `json:"front"`
	Back       bool       `json:"back"`
	Approved   bool       `json:"approved"`
	Types      []string   `json:"types,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Thumbnails Thumbnails `json:"thumbnails"`
}

// Thumbnails holds the pre-scaled renditions of an image.
type Thumbnails struct {
	Size250  string `json:"250,omitempty"`
	Size500  string `json:"500,omitempty"`
	Size1200 string `json:"1200,omitempty"`
	Small    string `json:"small,omitempty"`
	Large    string `json:"large,omitempty"`
}

// Front returns the front cover, falling back to the first image.
func (c *CoverArt) Front() (CoverArtImage, bool) {
	if c == nil || len(c.Images) == 0 {
		return CoverArtImage{}, false
	}
	for _, img := range c.Images {
		if img.Front {
			return img, true
		}
	}
	return c.Images[0], true
}

// ThumbURL returns the 500px rendition of the front cover, or the best available one.
func (c *CoverArt) ThumbURL() string {
	img, ok := c.Front()
	if !ok {
		return ""
	}
	for _, candidate := range []string{img.Thumbnails.Size500, img.Thumbnails.Large, img.Thumbnails.Size250, img.Thumbnails.Small, img.Image} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// ==========================================================================
// Wikipedia REST summary
// ==========================================================================

// WikiImage is a summary thumbnail or original image.
type WikiImage struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// WikiSummary is the page/summary payload.
type WikiSummary struct {
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Extract     string     `json:"extract"`
	Thumbnail   *WikiImage `json:"thumbnail,omitempty"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

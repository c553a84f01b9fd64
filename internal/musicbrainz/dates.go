package musicbrainz

import (
	"strconv"
	"strings"
	"time"
)

// ParseDate turns a MusicBrainz partial date into a sortable date.
// "YYYY" becomes December 31 of that year and "YYYY-MM" the last day of that month,
// so a release with a full date sorts before a partial one from the same period.
// Unparseable or empty input returns false.
func ParseDate(s string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return time.Time{}, false
	}

	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	year := nums[0]
	if year <= 0 {
		return time.Time{}, false
	}
	switch len(nums) {
	case 1:
		return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), true
	case 2:
		month := nums[1]
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		// Day zero of the following month is the last day of this one.
		return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC), true
	default:
		month, day := nums[1], nums[2]
		if month < 1 || month > 12 || day < 1 {
			return time.Time{}, false
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Month() != time.Month(month) {
			return time.Time{}, false
		}
		return t, true
	}
}

// LatestAlbum returns the album with the latest release date. Albums without a
// date are ignored; on a tie the earlier album in the slice wins.
func LatestAlbum(albums []*Album) *Album {
	var latest *Album
	for _, album := range albums {
		if album == nil || album.ReleaseDate.IsZero() {
			continue
		}
		if latest == nil || album.ReleaseDate.After(latest.ReleaseDate) {
			latest = album
		}
	}
	return latest
}

// ABOUTME: File names derived from 5-digit image identifiers
// ABOUTME: Plain <id>.jpg for local disk, YYYYMMDD_<id>.jpg for cloud uploads

package storage

import "time"

const imageExt = ".jpg"

// PlainFilename returns "<identifier>.jpg".
func PlainFilename(identifier string) string {
	return identifier + imageExt
}

// DatedFilename returns "<YYYYMMDD>_<identifier>.jpg" using the calendar date
// of at in loc. A nil loc uses at's own location.
func DatedFilename(identifier string, at time.Time, loc *time.Location) string {
	if loc != nil {
		at = at.In(loc)
	}
	return at.Format("20060102") + "_" + identifier + imageExt
}

package domain

import "time"

// BuildSummary is one entry of the build list returned by the metadata API.
type BuildSummary struct {
	UUID    string `json:"uuid"`
	Title   string `json:"title"`
	Build   string `json:"build"`
	Arch    string `json:"arch"`
	Created *int64 `json:"created,omitempty"`
}

// CreatedAt returns the creation time, or the zero time when unknown.
func (b BuildSummary) CreatedAt() time.Time {
	if b.Created == nil {
		return time.Time{}
	}
	return time.Unix(*b.Created, 0).UTC()
}

package scraper

import (
	"bytes"
	"encoding/json"
)

// SearchResponse is one page of the auction site's search endpoint.
type SearchResponse struct {
	Listings   []Listing `json:"listings"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
}

type Listing struct {
	ID          ListingID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	CurrentBid  string    `json:"current_bid"`
	URL         string    `json:"url"`
	TimeLeft    string    `json:"time_left"`
	ImageURL    string    `json:"image_url"`
}

// ListingID accepts both numeric and string ids.
type ListingID string

func (id *ListingID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ListingID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ListingID(n.String())
	return nil
}

package domain

import (
	"strconv"
	"strings"
)

// Coordinate is a position in decimal degrees. The zero value means "no fix yet".
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) IsUnset() bool { return c.Lat == 0 && c.Lng == 0 }

// String renders the "lat,lng" form the places provider expects.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

type PlaceRecord struct {
	ExternalID string      `json:"place_id,omitempty"` // empty when the provider omitted it
	Name       string      `json:"name,omitempty"`
	Address    string      `json:"address,omitempty"`
	Categories []string    `json:"categories,omitempty"` // first entry is the primary category
	Location   *Coordinate `json:"location,omitempty"`
	Rating     *float64    `json:"rating,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Website    *string     `json:"website,omitempty"`
	OpenNow    *bool       `json:"open_now,omitempty"`
}

func (p PlaceRecord) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// Rankable reports whether the record carries both a stable key and a position.
func (p PlaceRecord) Rankable() bool {
	return strings.TrimSpace(p.ExternalID) != "" && p.Location != nil
}

// RankedPlace is a PlaceRecord with its distance from the origin used at aggregation time.
type RankedPlace struct {
	Place      PlaceRecord `json:"place"`
	DistanceKm float64     `json:"distance_km"`
}

// Credentials carries the provider key for one aggregation.
type Credentials struct {
	APIKey string
}

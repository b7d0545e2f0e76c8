package places

import (
	"strings"

	"service_locator/internal/domain"
)

type nearbyResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type detailsResponse struct {
	Result       *placeResult `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

type placeResult struct {
	PlaceID          *string   `json:"place_id"`
	Name             *string   `json:"name"`
	Vicinity         *string   `json:"vicinity"`
	FormattedAddress *string   `json:"formatted_address"`
	Types            []string  `json:"types"`
	Geometry         *geometry `json:"geometry"`
	Rating           *float64  `json:"rating"`
	Phone            *string   `json:"formatted_phone_number"`
	Website          *string   `json:"website"`
	OpeningHours     *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`
}

type geometry struct {
	Location *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

func (r placeResult) toDomain() domain.PlaceRecord {
	rec := domain.PlaceRecord{
		ExternalID: strings.TrimSpace(deref(r.PlaceID)),
		Name:       deref(r.Name),
		Address:    deref(r.Vicinity),
		Categories: r.Types,
		Rating:     r.Rating,
		Phone:      r.Phone,
		Website:    r.Website,
	}
	if rec.Address == "" {
		rec.Address = deref(r.FormattedAddress)
	}
	if r.Geometry != nil && r.Geometry.Location != nil {
		rec.Location = &domain.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	if r.OpeningHours != nil {
		rec.OpenNow = r.OpeningHours.OpenNow
	}
	return rec
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

package domain

import "strings"

const (
	defaultFavoriteName     = "Unknown Service"
	defaultFavoriteAddress  = "No address available"
	defaultFavoriteCategory = "Service"
)

// Favorite is the durable projection of a PlaceRecord, one per PlaceID per account.
type Favorite struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Category string `json:"category"`
}

// FavoriteFromPlace projects p into a Favorite, filling display defaults.
func FavoriteFromPlace(p PlaceRecord) (Favorite, error) {
	id := strings.TrimSpace(p.ExternalID)
	if id == "" {
		return Favorite{}, ErrInvalidPlace
	}
	f := Favorite{
		PlaceID:  id,
		Name:     p.Name,
		Address:  p.Address,
		Category: p.PrimaryCategory(),
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = defaultFavoriteName
	}
	if strings.TrimSpace(f.Address) == "" {
		f.Address = defaultFavoriteAddress
	}
	if strings.TrimSpace(f.Category) == "" {
		f.Category = defaultFavoriteCategory
	}
	return f, nil
}

package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"service_locator/internal/app"
	"service_locator/internal/domain"
	"service_locator/internal/identity"
)

// Handlers serve one device: the process holds a single session at a time.
type Handlers struct {
	Svc      *app.DiscoveryService
	Verifier *identity.Verifier // nil disables login
	Sessions *identity.Signal
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type coordinateView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placeView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Categories []string        `json:"categories"`
	Location   *coordinateView `json:"location,omitempty"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
	Rating     *float64        `json:"rating,omitempty"`
	Phone      *string         `json:"phone,omitempty"`
	Website    *string         `json:"website,omitempty"`
	OpenNow    *bool           `json:"open_now,omitempty"`
	Favorite   bool            `json:"favorite"`
}

type searchView struct {
	Origin   coordinateView `json:"origin"`
	RadiusKm float64        `json:"radius_km"`
	Query    string         `json:"query,omitempty"`
	Count    int            `json:"count"`
	Places   []placeView    `json:"places"`
}

type toggleRequest struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Category string `json:"category"`
}

type favoriteState struct {
	PlaceID  string `json:"place_id"`
	Favorite bool   `json:"favorite"`
}

type sessionView struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	Restored  bool   `json:"restored"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/location", h.location)
	s.mux.Get("/v1/places", h.searchPlaces)
	s.mux.Get("/v1/places/{id}", h.getPlace)
	s.mux.Get("/v1/favorites", h.listFavorites)
	s.mux.Get("/v1/favorites/{id}", h.getFavorite)
	s.mux.Post("/v1/favorites/toggle", h.toggleFavorite)
	s.mux.Post("/v1/session", h.login)
	s.mux.Delete("/v1/session", h.logout)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain failures onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	var aggErr *domain.AggregationError
	switch {
	case errors.Is(err, domain.ErrTimeout):
		writeProblem(w, http.StatusGatewayTimeout, "Timeout", err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeProblem(w, http.StatusForbidden, "Location Unavailable", "device location permission denied; pass lat/lng or city")
	case errors.Is(err, domain.ErrNoSession):
		writeProblem(w, http.StatusUnauthorized, "Not Signed In", "sign in to manage favorites")
	case errors.Is(err, domain.ErrInvalidPlace):
		writeProblem(w, http.StatusBadRequest, "Invalid Place", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &aggErr):
		writeProblem(w, http.StatusBadGateway, "Search Failed", err.Error())
	case errors.Is(err, domain.ErrTransport):
		writeProblem(w, http.StatusBadGateway, "Upstream Error", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func toPlaceView(p domain.PlaceRecord) placeView {
	v := placeView{
		ID:         p.ExternalID,
		Name:       p.Name,
		Address:    p.Address,
		Categories: p.Categories,
		Rating:     p.Rating,
		Phone:      p.Phone,
		Website:    p.Website,
		OpenNow:    p.OpenNow,
	}
	if v.Categories == nil {
		v.Categories = []string{}
	}
	if p.Location != nil {
		v.Location = &coordinateView{Lat: p.Location.Lat, Lng: p.Location.Lng}
	}
	return v
}

// ---- discovery ----

func (h *Handlers) location(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Locate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordinateView{Lat: c.Lat, Lng: c.Lng})
}

// origin picks lat/lng, then city, then the device position.
func (h *Handlers) origin(r *http.Request) (domain.Coordinate, int, error) {
	q := r.URL.Query()
	latS, lngS, city := q.Get("lat"), q.Get("lng"), strings.TrimSpace(q.Get("city"))
	switch {
	case latS != "" || lngS != "":
		lat, err1 := strconv.ParseFloat(latS, 64)
		lng, err2 := strconv.ParseFloat(lngS, 64)
		if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return domain.Coordinate{}, http.StatusBadRequest, errors.New("lat and lng must both be valid degrees")
		}
		return domain.Coordinate{Lat: lat, Lng: lng}, 0, nil
	case city != "":
		c, ok, err := h.Svc.ResolveCity(r.Context(), city)
		if err != nil {
			return domain.Coordinate{}, 0, err
		}
		if !ok {
			return domain.Coordinate{}, http.StatusNotFound, errors.New("no coordinates found for " + city)
		}
		return c, 0, nil
	default:
		c, err := h.Svc.Locate(r.Context())
		return c, 0, err
	}
}

func (h *Handlers) searchPlaces(w http.ResponseWriter, r *http.Request) {
	origin, status, err := h.origin(r)
	switch {
	case status != 0:
		writeProblem(w, status, http.StatusText(status), err.Error())
		return
	case err != nil:
		writeError(w, err)
		return
	}

	radius := h.Svc.DefaultRadiusKm()
	if rs := r.URL.Query().Get("radius"); rs != "" {
		v, err := strconv.ParseFloat(rs, 64)
		if err != nil || v <= 0 || v > 50 {
			writeProblem(w, http.StatusBadRequest, "Invalid radius", "radius must be a number of km in (0, 50]")
			return
		}
		radius = v
	}
	query := r.URL.Query().Get("q")

	places, err := h.Svc.Search(r.Context(), origin, query, radius)
	if err != nil {
		writeError(w, err)
		return
	}

	out := searchView{
		Origin:   coordinateView{Lat: origin.Lat, Lng: origin.Lng},
		RadiusKm: radius,
		Query:    strings.TrimSpace(query),
		Count:    len(places),
		Places:   make([]placeView, 0, len(places)),
	}
	for _, rp := range places {
		v := toPlaceView(rp.Place)
		d := rp.DistanceKm
		v.DistanceKm = &d
		v.Favorite, _ = h.Svc.IsFavorite(r.Context(), rp.Place.ExternalID)
		out.Places = append(out.Places, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getPlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok, err := h.Svc.Details(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	v := toPlaceView(rec)
	v.Favorite, _ = h.Svc.IsFavorite(r.Context(), id)

	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getPlace body")
	}
}

// ---- favorites ----

func (h *Handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.Svc.Favorites(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if favs == nil {
		favs = []domain.Favorite{}
	}
	writeJSON(w, http.StatusOK, favs)
}

func (h *Handlers) getFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.Svc.IsFavorite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteState{PlaceID: id, Favorite: ok})
}

func (h *Handlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected a JSON object with place_id")
		return
	}
	req.PlaceID = strings.TrimSpace(req.PlaceID)
	if req.PlaceID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "place_id is required")
		return
	}

	place := domain.PlaceRecord{ExternalID: req.PlaceID, Name: req.Name, Address: req.Address}
	if req.Category != "" {
		place.Categories = []string{req.Category}
	}
	if req.Name == "" {
		// best effort: fill display fields from the provider
		if rec, ok, err := h.Svc.Details(r.Context(), req.PlaceID); err == nil && ok {
			place = rec
		}
	}

	on, err := h.Svc.ToggleFavorite(r.Context(), place)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteState{PlaceID: req.PlaceID, Favorite: on})
}

// ---- session ----

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Login Disabled", "no token secret configured")
		return
	}
	sess, err := h.Verifier.Session(r.Header.Get("Authorization"))
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}

	// apply synchronously so the restored favorites are visible on return;
	// the signal watcher then sees an unchanged account
	restoreErr := h.Svc.OnAccountChanged(r.Context(), sess)
	if restoreErr != nil {
		log.Warn().Err(restoreErr).Str("account", sess.AccountID).Msg("login restore incomplete")
	}
	h.Sessions.Set(sess)
	writeJSON(w, http.StatusOK, sessionView{AccountID: sess.AccountID, SessionID: sess.ID, Restored: restoreErr == nil})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.OnAccountChanged(r.Context(), nil); err != nil {
		writeError(w, err)
		return
	}
	h.Sessions.Set(nil)
	w.WriteHeader(http.StatusNoContent)
}

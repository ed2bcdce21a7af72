package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
	"sounding_archive/internal/inventory"
)

// SiteResponse is the JSON form of a site.
type SiteResponse struct {
	ShortName  string `json:"short_name"`
	LongName   string `json:"long_name,omitempty"`
	State      string `json:"state,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Mobile     bool   `json:"mobile"`
	Incomplete bool   `json:"incomplete"`
}

func siteToResponse(s catalog.Site) SiteResponse {
	return SiteResponse{
		ShortName:  s.ShortName(),
		LongName:   s.LongName(),
		State:      string(s.State()),
		Notes:      s.Notes(),
		Mobile:     s.IsMobile(),
		Incomplete: s.Incomplete(),
	}
}

// TypeResponse is the JSON form of a sounding type.
type TypeResponse struct {
	Source       string `json:"source"`
	FileKind     string `json:"file_kind"`
	Observed     bool   `json:"observed"`
	HoursBetween int    `json:"hours_between,omitempty"`
}

func typeToResponse(t catalog.SoundingType) TypeResponse {
	return TypeResponse{
		Source:       t.Source(),
		FileKind:     string(t.FileKind()),
		Observed:     t.IsObserved(),
		HoursBetween: t.HoursBetween(),
	}
}

// RangeResponse is an inclusive span of init times.
type RangeResponse struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// LocationResponse is the JSON form of a location.
type LocationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation int     `json:"elevation_m"`
	TZOffset  *int    `json:"tz_offset_seconds,omitempty"`
}

// EntryResponse is the inventory of one sounding type.
type EntryResponse struct {
	Type         TypeResponse       `json:"type"`
	Range        RangeResponse      `json:"range"`
	Count        int                `json:"count"`
	Missing      []RangeResponse    `json:"missing,omitempty"`
	MissingSlots int                `json:"missing_slots"`
	Locations    []LocationResponse `json:"locations"`
}

// InventoryResponse is the inventory of a site.
type InventoryResponse struct {
	Site    SiteResponse    `json:"site"`
	Entries []EntryResponse `json:"entries"`
}

func inventoryToResponse(inv *inventory.Inventory) InventoryResponse {
	resp := InventoryResponse{Site: siteToResponse(inv.Site()), Entries: []EntryResponse{}}
	for _, e := range inv.Entries() {
		er := EntryResponse{
			Type:         typeToResponse(e.Type),
			Range:        RangeResponse{First: e.Range.First.UTC(), Last: e.Range.Last.UTC()},
			Count:        e.Count,
			MissingSlots: e.MissingSlots(),
		}
		for _, m := range e.Missing {
			er.Missing = append(er.Missing, RangeResponse{First: m.First.UTC(), Last: m.Last.UTC()})
		}
		for _, l := range e.Locations {
			lr := LocationResponse{Latitude: l.Latitude(), Longitude: l.Longitude(), Elevation: l.Elevation()}
			if tz, ok := l.TZOffset(); ok {
				lr.TZOffset = &tz
			}
			er.Locations = append(er.Locations, lr)
		}
		resp.Entries = append(resp.Entries, er)
	}
	return resp
}

// SoundingResponse is one decoded profile header with its provider values.
type SoundingResponse struct {
	Station    string             `json:"station,omitempty"`
	StationNum int                `json:"station_num,omitempty"`
	ValidTime  time.Time          `json:"valid_time"`
	LeadHours  float64            `json:"lead_hours"`
	Latitude   *float64           `json:"latitude,omitempty"`
	Longitude  *float64           `json:"longitude,omitempty"`
	Elevation  *float64           `json:"elevation_m,omitempty"`
	Provider   map[string]float64 `json:"provider,omitempty"`
}

func analysisToResponse(a decoder.Analysis) SoundingResponse {
	s := a.Sounding
	resp := SoundingResponse{
		Station:    s.Station,
		StationNum: s.StationNum,
		ValidTime:  s.ValidTime.UTC(),
		LeadHours:  s.LeadTime.Hours(),
		Provider:   a.Provider,
	}
	if s.HasCoords {
		lat, lon, elev := s.Latitude, s.Longitude, s.Elevation
		resp.Latitude, resp.Longitude, resp.Elevation = &lat, &lon, &elev
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.Sites(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]SiteResponse, len(sites))
	for i, site := range sites {
		resp[i] = siteToResponse(site)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.SoundingTypes(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]TypeResponse, len(types))
	for i, t := range types {
		resp[i] = typeToResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	site, err := s.store.Site(r.Context(), chi.URLParam(r, "site"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	inv, err := s.store.Inventory(r.Context(), site)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryToResponse(inv))
}

func (s *Server) handleInitTimes(w http.ResponseWriter, r *http.Request) {
	site, typ, ok := s.siteAndType(w, r)
	if !ok {
		return
	}
	times, err := s.store.InitTimes(r.Context(), site, typ)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]time.Time, len(times))
	for i, t := range times {
		resp[i] = t.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	site, typ, ok := s.siteAndType(w, r)
	if !ok {
		return
	}
	t, err := s.store.MostRecentValidTime(r.Context(), site, typ)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"init_time": t.UTC()})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	site, typ, initTime, ok := s.fileKey(w, r)
	if !ok {
		return
	}

	rc, err := s.store.Export(r.Context(), site, typ, initTime)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	name := archive.RawFileName(site, typ, initTime)
	if typ.FileKind() == catalog.KindBufkit {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("file download interrupted", "file", name, "error", err)
	}
}

func (s *Server) handleSounding(w http.ResponseWriter, r *http.Request) {
	site, typ, initTime, ok := s.fileKey(w, r)
	if !ok {
		return
	}
	analyses, err := s.store.Retrieve(r.Context(), site, typ, initTime)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]SoundingResponse, len(analyses))
	for i, a := range analyses {
		resp[i] = analysisToResponse(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) siteAndType(w http.ResponseWriter, r *http.Request) (catalog.Site, catalog.SoundingType, bool) {
	site, err := s.store.Site(r.Context(), chi.URLParam(r, "site"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return catalog.Site{}, catalog.SoundingType{}, false
	}
	typ, err := s.store.SoundingType(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return catalog.Site{}, catalog.SoundingType{}, false
	}
	return site, typ, true
}

func (s *Server) fileKey(w http.ResponseWriter, r *http.Request) (catalog.Site, catalog.SoundingType, time.Time, bool) {
	initTime, err := catalog.ParseInitTime(chi.URLParam(r, "init_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return catalog.Site{}, catalog.SoundingType{}, time.Time{}, false
	}
	site, typ, ok := s.siteAndType(w, r)
	return site, typ, initTime, ok
}

// statusFor maps archive errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, decoder.ErrNoDecoder):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package httpapi exposes the intake engine over JSON HTTP. Client routes
// cover intake, search, and geocoding; the /api/uagent routes are the
// surface field agents poll and report through.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/geo"
	"github.com/wh0th3h3llam1/agent-aid/internal/intake"
	"github.com/wh0th3h3llam1/agent-aid/internal/merge"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
	"github.com/wh0th3h3llam1/agent-aid/internal/requeststore"
	"github.com/wh0th3h3llam1/agent-aid/internal/session"
)

const kmPerMile = 0.621371

// Server routes HTTP traffic to the engine.
type Server struct {
	engine  *intake.Engine
	log     *zap.Logger
	http    *http.Server
	started time.Time
}

// New builds a Server listening on addr.
func New(addr string, engine *intake.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		log:     log.Named("http"),
		started: time.Now(),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the route table. Exposed so tests can drive it through
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("POST /api/extract/batch", s.handleExtractBatch)
	mux.HandleFunc("POST /api/search/similar", s.handleSearchSimilar)

	mux.HandleFunc("GET /api/requests", s.handleListRequests)
	mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("GET /api/requests/priority/{priority}", s.handleRequestsByPriority)
	mux.HandleFunc("DELETE /api/requests/{id}", s.handleDeleteRequest)

	mux.HandleFunc("GET /api/session/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/session/cancel", s.handleCancelSession)

	mux.HandleFunc("POST /api/geocode", s.handleGeocode)
	mux.HandleFunc("POST /api/geocode/batch", s.handleGeocodeBatch)
	mux.HandleFunc("POST /api/distance", s.handleDistance)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/uagent/pending-requests", s.handlePending)
	mux.HandleFunc("GET /api/uagent/request/{id}", s.handleAgentGetRequest)
	mux.HandleFunc("POST /api/uagent/requests-nearby", s.handleNearby)
	mux.HandleFunc("POST /api/uagent/claim-request", s.handleClaim)
	mux.HandleFunc("POST /api/uagent/update", s.handleAgentUpdate)
	mux.HandleFunc("GET /api/uagent/updates", s.handleAgentUpdates)
	mux.HandleFunc("POST /api/uagent/cleanup", s.handleCleanup)

	return mux
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type extractRequest struct {
	Input     string `json:"input"`
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		s.fail(w, http.StatusBadRequest, "input is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	res, err := s.engine.Process(r.Context(), req.Input, req.SessionID, req.Source)
	if err != nil {
		s.processError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Success: true, TurnResult: res})
}

type extractResponse struct {
	Success bool `json:"success"`
	*intake.TurnResult
}

type extractBatchRequest struct {
	Inputs []string `json:"inputs"`
	Source string   `json:"source"`
}

type batchItem struct {
	Input   string             `json:"input"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Result  *intake.TurnResult `json:"result,omitempty"`
}

func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req extractBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Inputs) == 0 {
		s.fail(w, http.StatusBadRequest, "inputs is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	results := s.engine.ProcessBatch(r.Context(), req.Inputs, req.Source)
	items := make([]batchItem, 0, len(results))
	for _, br := range results {
		item := batchItem{Input: br.Input, Success: br.Err == nil, Result: br.Result}
		if br.Err != nil {
			item.Error = br.Err.Error()
		}
		items = append(items, item)
	}
	s.ok(w, map[string]any{"results": items, "count": len(items)})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.fail(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.engine.SearchSimilar(req.Query, req.Limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.ok(w, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Requests().List()
	st := s.engine.Requests().Stats()
	s.ok(w, map[string]any{
		"requests":    list,
		"count":       len(list),
		"by_priority": st.ByPriority,
		"geocoded":    st.Geocoded,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Requests().Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "request not found")
		return
	}
	s.ok(w, map[string]any{"request": rec})
}

func (s *Server) handleRequestsByPriority(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Requests().ByPriority(r.PathValue("priority"))
	s.ok(w, map[string]any{"requests": list, "count": len(list)})
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.engine.Delete(id); err != nil {
		s.fail(w, http.StatusNotFound, "request not found")
		return
	}
	s.ok(w, map[string]any{"deleted": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Sessions().Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "session not found or expired")
		return
	}
	s.ok(w, map[string]any{"session": sess})
}

type cancelSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var req cancelSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.fail(w, http.StatusBadRequest, "session_id is required")
		return
	}
	s.engine.Sessions().Delete(req.SessionID)
	s.ok(w, map[string]any{"cancelled": req.SessionID})
}

type geocodeRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Address == "" {
		s.fail(w, http.StatusBadRequest, "address is required")
		return
	}

	coords, err := s.engine.Geocode(r.Context(), req.Address)
	if err != nil {
		s.fail(w, http.StatusBadGateway, err.Error())
		return
	}
	if coords == nil {
		s.fail(w, http.StatusNotFound, "no match for address")
		return
	}
	s.ok(w, map[string]any{"coordinates": coords})
}

type geocodeBatchRequest struct {
	Addresses []string `json:"addresses"`
}

type geocodeBatchItem struct {
	Address     string              `json:"address"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Error       string              `json:"error,omitempty"`
}

func (s *Server) handleGeocodeBatch(w http.ResponseWriter, r *http.Request) {
	var req geocodeBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Addresses) == 0 {
		s.fail(w, http.StatusBadRequest, "addresses is required")
		return
	}

	items := make([]geocodeBatchItem, 0, len(req.Addresses))
	for i, addr := range req.Addresses {
		if i > 0 {
			select {
			case <-r.Context().Done():
				s.fail(w, http.StatusBadRequest, "request cancelled")
				return
			case <-time.After(s.engine.GeocodeDelay()):
			}
		}
		item := geocodeBatchItem{Address: addr}
		coords, err := s.engine.Geocode(r.Context(), addr)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Coordinates = coords
		}
		items = append(items, item)
	}
	s.ok(w, map[string]any{"results": items, "count": len(items)})
}

type distanceRequest struct {
	Lat1 float64 `json:"lat1"`
	Lon1 float64 `json:"lon1"`
	Lat2 float64 `json:"lat2"`
	Lon2 float64 `json:"lon2"`
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	var req distanceRequest
	if !s.decode(w, r, &req) {
		return
	}
	km := geo.Distance(req.Lat1, req.Lon1, req.Lat2, req.Lon2)
	s.ok(w, map[string]any{
		"distance_km":    km,
		"distance_miles": km * kmPerMile,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	extractionOK := s.engine.Healthy(r.Context())
	status := "ok"
	if !extractionOK {
		status = "degraded"
	}
	s.ok(w, map[string]any{
		"status":     status,
		"extraction": extractionOK,
		"geocoding":  s.engine.GeocodingEnabled(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	stats["uptime_seconds"] = int64(time.Since(s.started).Seconds())
	s.ok(w, map[string]any{"stats": stats})
}

// agentView is the request shape the agent surface returns: the record plus
// the derived triage fields agents sort on.
type agentView struct {
	*models.DisasterRequest
	UrgencyLevel int  `json:"urgency_level"`
	Geocoded     bool `json:"geocoded"`
}

func agentViews(list []*models.DisasterRequest) []agentView {
	out := make([]agentView, 0, len(list))
	for _, rec := range list {
		out = append(out, agentView{
			DisasterRequest: rec,
			UrgencyLevel:    rec.UrgencyLevel(),
			Geocoded:        rec.Coordinates != nil,
		})
	}
	return out
}

func (s *Server) handleAgentGetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Requests().Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "request not found")
		return
	}
	s.ok(w, map[string]any{"request": agentView{
		DisasterRequest: rec,
		UrgencyLevel:    rec.UrgencyLevel(),
		Geocoded:        rec.Coordinates != nil,
	}})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Requests().ListPending()
	s.ok(w, map[string]any{"requests": agentViews(list), "count": len(list)})
}

type nearbyRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"`
}

type nearbyMatch struct {
	Request    agentView `json:"request"`
	DistanceKm float64   `json:"distance_km"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	var req nearbyRequest
	if !s.decode(w, r, &req) {
		return
	}
	matches := s.engine.Nearby(req.Latitude, req.Longitude, req.RadiusKm)
	out := make([]nearbyMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, nearbyMatch{
			Request: agentView{
				DisasterRequest: m.Request,
				UrgencyLevel:    m.Request.UrgencyLevel(),
				Geocoded:        true,
			},
			DistanceKm: m.DistanceKm,
		})
	}
	s.ok(w, map[string]any{"matches": out, "count": len(out)})
}

type claimRequest struct {
	RequestID    string `json:"request_id"`
	AgentID      string `json:"agent_id"`
	AgentAddress string `json:"agent_address"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" || req.AgentID == "" {
		s.fail(w, http.StatusBadRequest, "request_id and agent_id are required")
		return
	}

	rec, err := s.engine.Claim(r.Context(), req.RequestID, req.AgentID, req.AgentAddress)
	if err != nil {
		if errors.Is(err, requeststore.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "request not found")
			return
		}
		s.fail(w, http.StatusConflict, err.Error())
		return
	}
	s.ok(w, map[string]any{"request": rec})
}

type agentUpdateRequest struct {
	RequestID       string                  `json:"request_id"`
	AgentID         string                  `json:"agent_id"`
	Status          string                  `json:"status"`
	MatchedSupplier *models.MatchedSupplier `json:"matched_supplier"`
	ETA             string                  `json:"eta"`
}

func (s *Server) handleAgentUpdate(w http.ResponseWriter, r *http.Request) {
	var req agentUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" || req.AgentID == "" || req.Status == "" {
		s.fail(w, http.StatusBadRequest, "request_id, agent_id and status are required")
		return
	}

	entry := s.engine.ApplyUpdate(r.Context(), requeststore.Update{
		RequestID:       req.RequestID,
		AgentID:         req.AgentID,
		Status:          req.Status,
		MatchedSupplier: req.MatchedSupplier,
		ETA:             req.ETA,
	})
	s.ok(w, map[string]any{"update": entry})
}

func (s *Server) handleAgentUpdates(w http.ResponseWriter, r *http.Request) {
	updates := s.engine.Requests().Updates()
	s.ok(w, map[string]any{"updates": updates, "count": len(updates)})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.engine.Cleanup()
	s.ok(w, map[string]any{"removed": removed, "count": len(removed)})
}

// processError maps a pipeline failure to a status code. Collaborator
// failures are the upstream's fault, everything else is a bad request or an
// internal error.
func (s *Server) processError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrExtractionFailed), errors.Is(err, merge.ErrMergeFailed):
		s.fail(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, session.ErrNotFound):
		s.fail(w, http.StatusNotFound, err.Error())
	default:
		s.fail(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) ok(w http.ResponseWriter, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

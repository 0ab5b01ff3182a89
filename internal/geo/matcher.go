// Package geo stores geocoded requests and answers radius queries with
// great-circle distance. It also wraps the external geocoding collaborator.
package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// earthRadiusKm is the Earth radius used for haversine distance.
const earthRadiusKm = 6371

// DefaultRadiusKm is the nearby-search radius when none is given.
const DefaultRadiusKm = 10

// Match pairs a stored request with its distance from the query point.
type Match struct {
	Request    *models.DisasterRequest `json:"request"`
	DistanceKm float64                 `json:"distance_km"`
}

// Matcher indexes requests that were successfully geocoded. Requests without
// coordinates are never stored and therefore never appear in results.
// Thread-safe.
type Matcher struct {
	mu       sync.RWMutex
	requests []*models.DisasterRequest
	byID     map[string]int
}

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{byID: make(map[string]int)}
}

// Store records the request for geo queries. Requests lacking coordinates
// are ignored. The matcher keeps its own copy; it is never mutated after
// insert, so Nearby results can be read without aliasing the live record.
func (m *Matcher) Store(rec *models.DisasterRequest) {
	if rec.Coordinates == nil {
		return
	}
	m.mu.Lock()
	m.byID[rec.RequestID] = len(m.requests)
	m.requests = append(m.requests, rec.Clone())
	m.mu.Unlock()
}

// Nearby returns every stored request within radiusKm of the point, sorted
// ascending by distance. radiusKm <= 0 uses DefaultRadiusKm.
func (m *Matcher) Nearby(lat, lon, radiusKm float64) []Match {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, rec := range m.requests {
		if rec == nil {
			continue // removed
		}
		d := Distance(lat, lon, rec.Coordinates.Latitude, rec.Coordinates.Longitude)
		if d <= radiusKm {
			matches = append(matches, Match{Request: rec, DistanceKm: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches
}

// Remove drops the request from geo queries. No-op if absent.
func (m *Matcher) Remove(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.byID[requestID]; ok {
		m.requests[i] = nil
		delete(m.byID, requestID)
	}
}

// Len returns the number of stored geocoded requests.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Distance is the haversine great-circle distance in kilometers.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Package intake orchestrates the full life of a relief request: extraction
// from free text, completeness checking, the clarification follow-up loop,
// and the commit into the searchable stores.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wh0th3h3llam1/agent-aid/internal/archive"
	"github.com/wh0th3h3llam1/agent-aid/internal/completeness"
	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/geo"
	"github.com/wh0th3h3llam1/agent-aid/internal/merge"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
	"github.com/wh0th3h3llam1/agent-aid/internal/requeststore"
	"github.com/wh0th3h3llam1/agent-aid/internal/session"
	"github.com/wh0th3h3llam1/agent-aid/internal/similarity"
)

// MaxFollowupRounds caps clarification rounds per intake. After the cap the
// merged record commits as-is, however incomplete.
const MaxFollowupRounds = 1

// similarLimit is how many similar existing requests a commit reports back.
const similarLimit = 5

// TurnResult is the outcome of one intake turn. Either NeedsFollowup is set
// with a session to resume, or Data holds the committed request.
type TurnResult struct {
	NeedsFollowup     bool                    `json:"needs_followup"`
	SessionID         string                  `json:"session_id,omitempty"`
	CompletenessScore int                     `json:"completeness_score"`
	Issues            []completeness.Issue    `json:"issues,omitempty"`
	FollowupMessage   string                  `json:"followup_message,omitempty"`
	Data              *models.DisasterRequest `json:"data,omitempty"`
	SimilarRequests   []similarity.Result     `json:"similar_requests,omitempty"`
	FollowUpCompleted bool                    `json:"follow_up_completed,omitempty"`
}

// BatchResult pairs one batch input with its outcome.
type BatchResult struct {
	Input  string      `json:"input"`
	Result *TurnResult `json:"result,omitempty"`
	Err    error       `json:"-"`
}

// Engine wires the intake pipeline together. The archive and geocoder are
// optional; a nil archive disables persistence and a nil geocoder disables
// coordinate resolution.
type Engine struct {
	log      *zap.Logger
	client   extract.Client
	resolver *merge.Resolver
	sessions *session.Store
	requests *requeststore.Store
	index    similarity.Index
	matcher  *geo.Matcher
	geocoder geo.Geocoder
	arch     *archive.Archive

	radiusKm   float64
	batchDelay time.Duration
	now        func() time.Time
}

// Options carries the collaborators for NewEngine. Zero-value optional
// fields fall back to defaults.
type Options struct {
	Log      *zap.Logger
	Client   extract.Client
	Sessions *session.Store
	Requests *requeststore.Store
	Index    similarity.Index
	Matcher  *geo.Matcher
	Geocoder geo.Geocoder
	Archive  *archive.Archive

	RadiusKm   float64
	BatchDelay time.Duration
}

func NewEngine(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	radius := opts.RadiusKm
	if radius <= 0 {
		radius = geo.DefaultRadiusKm
	}
	delay := opts.BatchDelay
	if delay == 0 {
		delay = time.Second
	}
	return &Engine{
		log:        log.Named("intake"),
		client:     opts.Client,
		resolver:   merge.NewResolver(opts.Client),
		sessions:   opts.Sessions,
		requests:   opts.Requests,
		index:      opts.Index,
		matcher:    opts.Matcher,
		geocoder:   opts.Geocoder,
		arch:       opts.Archive,
		radiusKm:   radius,
		batchDelay: delay,
		now:        time.Now,
	}
}

// Process runs one intake turn. A non-empty sessionID resumes a
// clarification session; an expired or unknown session is surfaced to the
// caller as session.ErrNotFound. Only a failed merge burns the session and
// re-runs the follow-up text as a fresh report.
func (e *Engine) Process(ctx context.Context, input, sessionID, source string) (*TurnResult, error) {
	if sessionID != "" {
		res, err := e.resume(ctx, input, sessionID, source)
		if err == nil {
			return res, nil
		}
		// Only a failed merge falls back to fresh intake; an unknown or
		// expired session is the caller's problem to restart.
		if !errors.Is(err, merge.ErrMergeFailed) {
			return nil, err
		}
		e.log.Warn("merge failed, treating follow-up as fresh intake",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return e.fresh(ctx, input, source)
}

func (e *Engine) fresh(ctx context.Context, input, source string) (*TurnResult, error) {
	rec, err := e.client.Extract(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	rec.RawInput = input
	rec.Source = source
	rec.Timestamp = e.now()

	check := completeness.Check(rec)
	if !check.IsComplete {
		sess := e.sessions.Create(rec, input, source)
		e.log.Info("intake incomplete, clarification session opened",
			zap.String("session_id", sess.SessionID),
			zap.Int("score", check.Score),
			zap.Int("issues", len(check.Issues)))
		return &TurnResult{
			NeedsFollowup:     true,
			SessionID:         sess.SessionID,
			CompletenessScore: check.Score,
			Issues:            check.Issues,
			FollowupMessage:   completeness.FollowupMessage(check.Issues),
			Data:              rec,
		}, nil
	}

	return e.commit(ctx, rec, check.Score)
}

func (e *Engine) resume(ctx context.Context, input, sessionID, source string) (*TurnResult, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	merged, err := e.resolver.Merge(ctx, sess.OriginalData, sess.OriginalInput, input)
	if err != nil {
		// A failed merge burns the session; the caller retries the
		// follow-up text as a fresh report.
		e.sessions.Delete(sessionID)
		return nil, err
	}
	e.sessions.Delete(sessionID)
	if source != "" {
		merged.Source = source
	} else {
		merged.Source = sess.Source
	}

	check := completeness.Check(merged)
	if !check.IsComplete && sess.Rounds+1 < MaxFollowupRounds {
		next := e.sessions.Create(merged, merged.RawInput, merged.Source)
		return &TurnResult{
			NeedsFollowup:     true,
			SessionID:         next.SessionID,
			CompletenessScore: check.Score,
			Issues:            check.Issues,
			FollowupMessage:   completeness.FollowupMessage(check.Issues),
			Data:              merged,
		}, nil
	}

	// One round is all an intake gets; commit even if still incomplete.
	return e.commit(ctx, merged, check.Score)
}

func (e *Engine) commit(ctx context.Context, rec *models.DisasterRequest, score int) (*TurnResult, error) {
	if rec.RequestID == "" {
		rec.RequestID = models.NewRequestID(e.now())
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}

	e.geocode(ctx, rec)

	if err := e.requests.Add(rec); err != nil {
		return nil, fmt.Errorf("commit %s: %w", rec.RequestID, err)
	}
	if err := e.index.Store(rec); err != nil {
		e.log.Warn("similarity index store failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
	}
	e.matcher.Store(rec)
	e.archiveRequest(ctx, rec)

	similar := e.similarTo(rec)

	e.log.Info("request committed",
		zap.String("request_id", rec.RequestID),
		zap.String("priority", rec.Priority),
		zap.Int("score", score),
		zap.Bool("geocoded", rec.Coordinates != nil))

	return &TurnResult{
		CompletenessScore: score,
		Data:              rec,
		SimilarRequests:   similar,
		FollowUpCompleted: rec.FollowUpCompleted,
	}, nil
}

// geocode resolves coordinates for the record's location. Failures are
// logged and swallowed; a request without coordinates is still valid, it
// just never appears in radius queries.
func (e *Engine) geocode(ctx context.Context, rec *models.DisasterRequest) {
	if e.geocoder == nil || rec.Coordinates != nil {
		return
	}
	coords, err := e.geocoder.Geocode(ctx, rec.Location)
	if err != nil {
		e.log.Warn("geocoding failed",
			zap.String("request_id", rec.RequestID),
			zap.String("location", rec.Location),
			zap.Error(err))
		return
	}
	rec.Coordinates = coords
}

// similarTo returns existing requests most similar to rec, excluding rec
// itself.
func (e *Engine) similarTo(rec *models.DisasterRequest) []similarity.Result {
	results, err := e.index.Query(rec.SearchableText(), similarLimit+1)
	if err != nil {
		e.log.Warn("similarity query failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
		return nil
	}
	out := results[:0]
	for _, r := range results {
		if r.RequestID == rec.RequestID {
			continue
		}
		out = append(out, r)
	}
	if len(out) > similarLimit {
		out = out[:similarLimit]
	}
	return out
}

func (e *Engine) archiveRequest(ctx context.Context, rec *models.DisasterRequest) {
	if e.arch == nil {
		return
	}
	if err := e.arch.SaveRequest(ctx, rec); err != nil {
		e.log.Warn("archive write failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
	}
}

// ProcessBatch runs each input as an independent fresh intake, pausing
// between items so the extraction and geocoding collaborators are not
// hammered. A failed item does not stop the batch.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []string, source string) []BatchResult {
	out := make([]BatchResult, 0, len(inputs))
	for i, input := range inputs {
		if i > 0 {
			select {
			case <-ctx.Done():
				out = append(out, BatchResult{Input: input, Err: ctx.Err()})
				continue
			case <-time.After(e.batchDelay):
			}
		}
		res, err := e.Process(ctx, input, "", source)
		out = append(out, BatchResult{Input: input, Result: res, Err: err})
	}
	return out
}

// SearchSimilar answers a free-text similarity query over committed
// requests.
func (e *Engine) SearchSimilar(text string, k int) ([]similarity.Result, error) {
	if k <= 0 {
		k = similarLimit
	}
	return e.index.Query(text, k)
}

// Nearby returns committed requests within radiusKm of the point, closest
// first. A non-positive radius uses the configured default.
func (e *Engine) Nearby(lat, lon, radiusKm float64) []geo.Match {
	if radiusKm <= 0 {
		radiusKm = e.radiusKm
	}
	matches := e.matcher.Nearby(lat, lon, radiusKm)
	// The matcher holds each record as of commit time; swap in the store's
	// current view so claims and agent updates show up in the results.
	for i := range matches {
		if rec, err := e.requests.Get(matches[i].Request.RequestID); err == nil {
			matches[i].Request = rec
		}
	}
	return matches
}

// GeocodeDelay is the pause batch callers should insert between geocoding
// calls to respect the provider's rate limit.
func (e *Engine) GeocodeDelay() time.Duration {
	if e.geocoder == nil {
		return 0
	}
	return e.geocoder.RateDelay()
}

// Claim assigns a pending request to an agent and archives the transition.
func (e *Engine) Claim(ctx context.Context, requestID, agentID, agentAddress string) (*models.DisasterRequest, error) {
	rec, err := e.requests.Claim(requestID, agentID, agentAddress)
	if err != nil {
		return nil, err
	}
	e.archiveRequest(ctx, rec)
	return rec, nil
}

// ApplyUpdate records a status update from an agent. The update is logged
// and archived even when the request id is unknown.
func (e *Engine) ApplyUpdate(ctx context.Context, u requeststore.Update) models.AgentUpdate {
	entry := e.requests.ApplyUpdate(u)
	if e.arch != nil {
		if err := e.arch.SaveUpdate(ctx, entry); err != nil {
			e.log.Warn("archive update failed",
				zap.String("update_id", entry.ID), zap.Error(err))
		}
	}
	if rec, err := e.requests.Get(u.RequestID); err == nil {
		e.archiveRequest(ctx, rec)
	}
	return entry
}

// Cleanup purges fulfilled and cancelled requests from every store and
// returns the removed ids.
func (e *Engine) Cleanup() []string {
	removed := e.requests.Cleanup()
	for _, id := range removed {
		e.index.Remove(id)
		e.matcher.Remove(id)
	}
	if len(removed) > 0 {
		e.log.Info("cleanup removed terminal requests", zap.Int("count", len(removed)))
	}
	return removed
}

// Delete removes a request from every store regardless of its status.
func (e *Engine) Delete(requestID string) (*models.DisasterRequest, error) {
	rec, err := e.requests.Delete(requestID)
	if err != nil {
		return nil, err
	}
	e.index.Remove(requestID)
	e.matcher.Remove(requestID)
	return rec, nil
}

// Requests exposes the request store for read-only handlers.
func (e *Engine) Requests() *requeststore.Store { return e.requests }

// Sessions exposes the session store for read-only handlers.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// Geocode resolves a free-form address, or returns nil when no geocoder is
// configured.
func (e *Engine) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	if e.geocoder == nil {
		return nil, errors.New("geocoding not configured")
	}
	return e.geocoder.Geocode(ctx, address)
}

// Healthy reports whether the extraction collaborator is reachable.
func (e *Engine) Healthy(ctx context.Context) bool {
	return e.client.Healthy(ctx)
}

// GeocodingEnabled reports whether a geocoder is configured.
func (e *Engine) GeocodingEnabled() bool { return e.geocoder != nil }

// Stats summarizes the engine's stores.
func (e *Engine) Stats() map[string]interface{} {
	st := e.requests.Stats()
	return map[string]interface{}{
		"total_requests":  st.Total,
		"by_priority":     st.ByPriority,
		"geocoded":        st.Geocoded,
		"agent_updates":   st.Updates,
		"active_sessions": e.sessions.Len(),
		"indexed":         e.index.Len(),
	}
}

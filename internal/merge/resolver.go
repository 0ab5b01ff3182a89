// Package merge reconciles a follow-up answer with the partial record stored
// in its clarification session. The free-text reconciliation itself is
// delegated to the extraction collaborator; this package owns the merge
// contract around it.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// ErrMergeFailed indicates the collaborator produced no usable structure for
// the merge. The session cannot be resumed; the caller falls back to
// treating the follow-up text as a brand-new intake.
var ErrMergeFailed = errors.New("follow-up merge produced no valid structure")

// Resolver merges follow-up answers into their original partial records.
type Resolver struct {
	client extract.Client
	now    func() time.Time
}

// NewResolver creates a Resolver backed by the given collaborator client.
func NewResolver(client extract.Client) *Resolver {
	return &Resolver{client: client, now: time.Now}
}

// Merge produces the final record for a resumed session. Regardless of what
// the collaborator returns, the result keeps the original request id, its
// raw-input history gains the follow-up as an ordered suffix, and the
// timestamp is stamped fresh. Merge never mints a new id.
func (r *Resolver) Merge(ctx context.Context, original *models.DisasterRequest, originalInput, followupText string) (*models.DisasterRequest, error) {
	merged, err := r.client.Merge(ctx, original, followupText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	merged.RequestID = original.RequestID
	merged.RawInput = fmt.Sprintf("%s\n[Follow-up]: %s", originalInput, followupText)
	merged.Timestamp = r.now()
	merged.Status = models.StatusPending
	merged.FollowUpCompleted = true
	return merged, nil
}

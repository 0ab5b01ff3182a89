package extract

import (
	"context"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// FakeClient is a canned-response Client for tests and offline runs.
type FakeClient struct {
	ExtractFunc func(rawInput string) (*models.DisasterRequest, error)
	MergeFunc   func(original *models.DisasterRequest, followupText string) (*models.DisasterRequest, error)
}

func (f *FakeClient) Extract(_ context.Context, rawInput string) (*models.DisasterRequest, error) {
	if f.ExtractFunc == nil {
		return nil, ErrExtractionFailed
	}
	return f.ExtractFunc(rawInput)
}

func (f *FakeClient) Merge(_ context.Context, original *models.DisasterRequest, followupText string) (*models.DisasterRequest, error) {
	if f.MergeFunc == nil {
		return nil, ErrExtractionFailed
	}
	return f.MergeFunc(original, followupText)
}

func (f *FakeClient) Healthy(context.Context) bool { return true }

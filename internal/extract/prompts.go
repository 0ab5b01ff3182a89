package extract

import (
	"encoding/json"
	"fmt"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

const extractionPreamble = `You are a disaster response AI assistant. Extract structured information from victim reports.

Extract the following fields:
- items: array of needed items (food, water, medical supplies, shelter, etc.)
- quantity_needed: specific numbers or "low", "medium", "high"
- location: DETAILED address or description of location (be as specific as possible)
- priority: "low", "medium", "high", "critical" (based on urgency indicators)
- contact: phone number or contact info if provided
- additional_notes: any other relevant details
- victim_count: estimated number of people affected (if mentioned)

IMPORTANT: For location, extract the most specific address possible. Look for:
- Street addresses (123 Main Street)
- Building names (Lincoln High School, County Hospital)
- Room numbers (Room 101, Building A)
- Landmarks (near the old church, by the river)
- Intersections (corner of 5th and Main)

Return ONLY valid JSON with these fields. If information is missing, use null.`

// ExtractionPrompt builds the prompt for a fresh report.
func ExtractionPrompt(rawInput string) string {
	return fmt.Sprintf("%s\n\nVictim Report: %q", extractionPreamble, rawInput)
}

// MergePrompt builds the prompt that overlays a follow-up answer onto the
// original structured record. Only the seven schema fields are shown to the
// collaborator; identity fields (request id, raw input, timestamps) never
// leave the merge resolver, so the response cannot clobber them.
func MergePrompt(original *models.DisasterRequest, followupText string) (string, error) {
	view := map[string]any{
		"items":            original.Items,
		"quantity_needed":  original.QuantityNeeded,
		"location":         original.Location,
		"priority":         original.Priority,
		"contact":          original.Contact,
		"additional_notes": original.AdditionalNotes,
		"victim_count":     original.VictimCount,
	}
	originalJSON, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding original record: %w", err)
	}
	return fmt.Sprintf(`You are merging follow-up information with an existing disaster request.

Original extracted data:
%s

Follow-up response from user:
%q

Update the original data with the new information. Return ONLY valid JSON with the complete, merged data structure using the fields items, quantity_needed, location, priority, contact, additional_notes, victim_count. Keep all original fields and update/add based on the follow-up response.`, originalJSON, followupText), nil
}

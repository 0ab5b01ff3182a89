// Package completeness decides whether an extracted disaster request is
// specific enough to act on. The check is a pure function over the record:
// identical input always yields the same issues, in the same order, and the
// same score.
package completeness

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// IssueType identifies a deficiency class detected by Check.
type IssueType string

const (
	IssueVagueItems     IssueType = "vague_items"
	IssueVagueQuantity  IssueType = "vague_quantity"
	IssueMissingContact IssueType = "missing_contact"
	IssueVagueLocation  IssueType = "vague_location"
)

// Issue describes one deficiency and the follow-up question for it.
type Issue struct {
	Type         IssueType `json:"type"`
	Field        string    `json:"field"`
	CurrentValue any       `json:"current_value"`
	Question     string    `json:"question"`
}

// Result is the outcome of a completeness check.
type Result struct {
	IsComplete bool    `json:"is_complete"`
	Issues     []Issue `json:"issues"`
	Score      int     `json:"completeness_score"`
}

// scoreFields is the fixed checklist size the score is computed against:
// items, quantity, location, contact, priority. The denominator does not
// shrink when a field is absent from the record.
const scoreFields = 5

// vagueItems are generic need descriptors that trigger a specificity
// follow-up when they appear anywhere inside an item string.
var vagueItems = []string{"medicine", "medical", "supplies", "food", "items", "stuff", "things"}

// Address heuristic: a location is specific if any one pattern matches.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s+\w+(\s+\w+)*\s+(street|st|avenue|ave|road|rd|blvd|drive|dr|lane|ln)\b`),
	regexp.MustCompile(`(?i)room\s+\d+`),
	regexp.MustCompile(`(?i)building\s+[\w-]+`),
	regexp.MustCompile(`\d+\s+\w+`),
	regexp.MustCompile(`\b[A-Z]{2}\s*\d{5}(-\d{4})?\b`), // US ZIP hint
}

// minLocationLen is the shortest location string considered at all; shorter
// strings are vague regardless of content.
const minLocationLen = 10

// qualitative quantity buckets that do not count as a specific amount.
var quantityBuckets = map[string]bool{"low": true, "medium": true, "high": true}

// Check evaluates the four deficiency rules in fixed order (items, quantity,
// contact, location) and derives the 0-100 score from the fixed five-field
// checklist. Rules are additive, never short-circuited.
func Check(rec *models.DisasterRequest) Result {
	var issues []Issue

	if hasVagueItems(rec.Items) {
		issues = append(issues, Issue{
			Type:         IssueVagueItems,
			Field:        "items",
			CurrentValue: rec.Items,
			Question:     itemSpecificityQuestion(rec.Items),
		})
	}

	if isVagueQuantity(rec.QuantityNeeded) {
		issues = append(issues, Issue{
			Type:         IssueVagueQuantity,
			Field:        "quantity_needed",
			CurrentValue: rec.QuantityNeeded,
			Question: fmt.Sprintf(
				"Please specify the exact quantity needed for %s. For example: \"50 units\" or \"100 bottles\"",
				itemsOr(rec.Items, "your items")),
		})
	}

	if strings.TrimSpace(rec.Contact) == "" {
		issues = append(issues, Issue{
			Type:         IssueMissingContact,
			Field:        "contact",
			CurrentValue: nil,
			Question:     "Please provide a contact phone number so we can coordinate the delivery.",
		})
	}

	if !HasSpecificAddress(rec.Location) {
		issues = append(issues, Issue{
			Type:         IssueVagueLocation,
			Field:        "location",
			CurrentValue: rec.Location,
			Question:     `Please provide a specific address or landmark. For example: "123 Main Street" or "Lincoln High School, Room 101"`,
		})
	}

	return Result{
		IsComplete: len(issues) == 0,
		Issues:     issues,
		Score:      score(len(issues)),
	}
}

// HasSpecificAddress reports whether the location string passes the loose
// address heuristic: long enough, and matching at least one address pattern.
func HasSpecificAddress(location string) bool {
	if len(location) < minLocationLen {
		return false
	}
	for _, p := range addressPatterns {
		if p.MatchString(location) {
			return true
		}
	}
	return false
}

// FollowupMessage assembles the single user-facing clarification prompt from
// the detected issues, one bullet per question.
func FollowupMessage(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Thanks for reaching out — we're here to help. To act quickly and correctly, please share a few details:\n")
	for _, iss := range issues {
		b.WriteString("\n- ")
		b.WriteString(iss.Question)
	}
	b.WriteString("\n\n(You can reply in a single message.)")
	return b.String()
}

func hasVagueItems(items []string) bool {
	for _, item := range items {
		low := strings.ToLower(item)
		for _, v := range vagueItems {
			if strings.Contains(low, v) {
				return true
			}
		}
	}
	return false
}

func isVagueQuantity(qty string) bool {
	q := strings.TrimSpace(qty)
	if q == "" {
		return true
	}
	return quantityBuckets[strings.ToLower(q)]
}

// itemSpecificityQuestion builds one question per vague keyword class found
// in the items, in item order.
func itemSpecificityQuestion(items []string) string {
	var qs []string
	for _, item := range items {
		low := strings.ToLower(item)
		switch {
		case strings.Contains(low, "medicine") || strings.Contains(low, "medical"):
			qs = append(qs, "What specific medicine or medical supplies do you need? (e.g., bandages, pain medication, insulin, antibiotics)")
		case strings.Contains(low, "food"):
			qs = append(qs, "What specific food items do you need? (e.g., baby formula, canned goods, rice, protein bars)")
		case strings.Contains(low, "supplies"):
			qs = append(qs, "What specific supplies do you need? Please list the exact items.")
		}
	}
	if len(qs) == 0 {
		return "Please specify exactly what items you need."
	}
	return strings.Join(qs, " ")
}

func itemsOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func score(issueCount int) int {
	s := int(math.Round(float64(scoreFields-issueCount) / scoreFields * 100))
	if s < 0 {
		return 0
	}
	return s
}

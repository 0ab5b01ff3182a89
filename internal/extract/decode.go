package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// recordPayload is the schema the collaborator must return. Unknown fields
// are rejected: a response that does not match this shape is an extraction
// failure, never a partially populated record.
type recordPayload struct {
	Items           []string    `json:"items"`
	QuantityNeeded  flexString  `json:"quantity_needed"`
	Location        *string     `json:"location"`
	Priority        *string     `json:"priority"`
	Contact         *string     `json:"contact"`
	AdditionalNotes *string     `json:"additional_notes"`
	VictimCount     *flexNumber `json:"victim_count"`
}

// flexString accepts a JSON string, number, or null. The collaborator is
// prompted to return quantities as either a number or a bucketed string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quantity must be a string or number: %s", s)
	}
	if n == math.Trunc(n) {
		*f = flexString(strconv.FormatInt(int64(n), 10))
	} else {
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return nil
}

// flexNumber accepts a JSON number, numeric string, or null.
type flexNumber int

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("victim_count %q is not numeric", v)
		}
		*f = flexNumber(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexNumber(int(n))
	return nil
}

// DecodeRecord locates the JSON object in the collaborator's response text
// and decodes it against the record schema. Any schema violation, negative
// victim count, or missing object yields ErrExtractionFailed.
func DecodeRecord(text string) (*models.DisasterRequest, error) {
	raw, ok := jsonObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrExtractionFailed)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var p recordPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	rec := &models.DisasterRequest{
		Items:          p.Items,
		QuantityNeeded: string(p.QuantityNeeded),
	}
	if p.Location != nil {
		rec.Location = *p.Location
	}
	if p.Priority != nil {
		rec.Priority = strings.ToLower(*p.Priority)
	}
	if p.Contact != nil {
		rec.Contact = *p.Contact
	}
	if p.AdditionalNotes != nil {
		rec.AdditionalNotes = *p.AdditionalNotes
	}
	if p.VictimCount != nil {
		if *p.VictimCount < 0 {
			return nil, fmt.Errorf("%w: negative victim_count", ErrExtractionFailed)
		}
		rec.VictimCount = int(*p.VictimCount)
	}
	return rec, nil
}

// jsonObject returns the outermost {...} span of text. Models often wrap the
// object in prose or a code fence; everything outside the braces is ignored.
func jsonObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

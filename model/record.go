package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
)

// Record is a receipt extracted from a photo. The six known fields are
// always present after ApplyDefaults; the edit flow may attach extra keys.
type Record map[string]string

// Known field names, in display order
const (
	FieldName    = "name"
	FieldNumber  = "number"
	FieldDate    = "date"
	FieldCompany = "company"
	FieldStatus  = "status"
	FieldUser    = "user"
)

var knownFields = []string{FieldName, FieldNumber, FieldDate, FieldCompany, FieldStatus, FieldUser}

// The two transfer companies receipts can come from
const (
	CompanyAlharam = "الهرم"
	CompanyAlfuad  = "الفؤاد"
)

// MinAmount is the smallest plausible transfer amount
const MinAmount = 50000

// ParseExtraction parses the raw text the vision service returned. The
// payload may arrive fenced in a markdown code block or wrapped in a
// single-element array; both are unwrapped. An empty array parses to an
// empty record. Malformed JSON yields nil, which callers must distinguish
// from a failed service call.
func ParseExtraction(raw string) Record {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil
	}

	if arr, ok := parsed.([]any); ok {
		if len(arr) == 0 {
			return Record{}
		}
		parsed = arr[0]
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}

	rec := make(Record, len(obj))
	for k, v := range obj {
		rec[k] = stringifyValue(v)
	}
	return rec
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FromDefaults builds a record populated entirely from configured defaults.
func FromDefaults(d config.DefaultValues) Record {
	return Record{
		FieldName:    d.Name,
		FieldNumber:  d.Number,
		FieldDate:    d.Date,
		FieldCompany: d.Company,
		FieldStatus:  d.Status,
		FieldUser:    d.User,
	}
}

// ApplyDefaults fills any missing or empty known field from the configured
// defaults. Status and user are forced regardless of what the vision
// service produced.
func (r Record) ApplyDefaults(d config.DefaultValues) {
	defaults := FromDefaults(d)
	for _, field := range knownFields {
		if r[field] == "" {
			r[field] = defaults[field]
		}
	}
	r[FieldStatus] = d.Status
	r[FieldUser] = d.User
}

// Normalize re-checks the business rules the extraction prompt states
// instead of trusting the model's output: the amount must be a plain
// digit string of at least MinAmount, the company one of the two known
// names, the date in YYYY-MM-DD. Violating fields are reset to their
// defaults. Returns the names of the fields that were corrected.
func (r Record) Normalize(d config.DefaultValues) []string {
	var corrected []string

	if !validAmount(r[FieldNumber]) {
		r[FieldNumber] = d.Number
		corrected = append(corrected, FieldNumber)
	}
	if r[FieldCompany] != CompanyAlharam && r[FieldCompany] != CompanyAlfuad {
		r[FieldCompany] = d.Company
		corrected = append(corrected, FieldCompany)
	}
	if _, err := time.Parse("2006-01-02", r[FieldDate]); err != nil {
		r[FieldDate] = d.Date
		corrected = append(corrected, FieldDate)
	}

	return corrected
}

func validAmount(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return false
	}
	return n >= MinAmount
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := make(Record, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// FieldNames lists the record's keys: known fields first in display order,
// then any extra keys sorted.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, field := range knownFields {
		if _, ok := r[field]; ok {
			names = append(names, field)
			seen[field] = true
		}
	}

	var extras []string
	for k := range r {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)

	return append(names, extras...)
}

// PrettyJSON renders the record as indented JSON for display and backups.
func (r Record) PrettyJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

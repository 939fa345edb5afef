// Package idem validates client-supplied idempotency keys on mutating
// requests and offers an optional cache-backed deduplication reservation.
//
// Validation is a precondition check only: a syntactically valid key does
// not mean the mutation is new. Callers thread the validated key (via
// hail.WithIdempotencyKey) into the Deduper or their own store.
package idem

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FieldName is the request field carrying the idempotency key, and the
// key every validation issue for it is reported under.
const FieldName = "idempotencyKey"

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Issues maps field names to validation messages. The zero value is usable.
type Issues map[string][]string

// Add appends a message for a field.
func (i Issues) Add(field, message string) {
	i[field] = append(i[field], message)
}

// Merge folds other's messages into i, so the caller returns one combined
// issue set per request.
func (i Issues) Merge(other Issues) {
	for field, messages := range other {
		i[field] = append(i[field], messages...)
	}
}

// Empty reports whether no issues were recorded.
func (i Issues) Empty() bool { return len(i) == 0 }

// Fields returns the field names with at least one issue.
func (i Issues) Fields() []string {
	fields := make([]string, 0, len(i))
	for field := range i {
		fields = append(fields, field)
	}
	return fields
}

// Values is anything a request field can be read from. Satisfied by
// url.Values and http.Header.
type Values interface {
	Get(key string) string
}

// ExtractAndValidate reads the idempotency key field from the request
// values and validates it. On success the returned Issues is empty; on
// failure the key is empty and the issues are keyed under FieldName.
func ExtractAndValidate(values Values) (string, Issues) {
	return Validate(values.Get(FieldName))
}

// Validate checks that raw is a well-formed idempotency key: either a
// 36-character UUID or a 64-character hexadecimal string. Anything else
// produces a structured issue; nothing is persisted or deduplicated here.
func Validate(raw string) (string, Issues) {
	issues := make(Issues)
	key := strings.TrimSpace(raw)

	if key == "" {
		issues.Add(FieldName, "idempotency key is required")
		return "", issues
	}

	if len(key) == 36 {
		if _, err := uuid.Parse(key); err == nil {
			return key, issues
		}
		issues.Add(FieldName, "idempotency key is not a valid UUID")
		return "", issues
	}

	if hexKeyPattern.MatchString(key) {
		return strings.ToLower(key), issues
	}

	issues.Add(FieldName, "idempotency key must be a UUID or a 64-character hex string")
	return "", issues
}

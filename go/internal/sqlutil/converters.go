package sqlutil

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go values and Postgres column types

// ToNullJSON encodes v for a jsonb column. A nil v becomes SQL NULL.
func ToNullJSON(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode json column: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullJSON decodes a jsonb column into dst and reports whether it was non-NULL.
func FromNullJSON(val pqtype.NullRawMessage, dst any) (bool, error) {
	if !val.Valid {
		return false, nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return true, fmt.Errorf("failed to decode json column: %w", err)
	}
	return true, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation raised through lib/pq.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

package repository

import "encoding/json"

type scanner interface {
	Scan(dest ...any) error
}

// jsonArg adapts a raw JSON value for a jsonb parameter. lib/pq encodes
// []byte as bytea, which postgres rejects for jsonb columns.
func jsonArg(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

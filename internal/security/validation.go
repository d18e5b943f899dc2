package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Request body limits.
const (
	DefaultMaxBodySize  = 1 << 20
	DefaultMaxJSONDepth = 32
)

// Validation errors.
var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrJSONTooDeep  = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON  = errors.New("invalid JSON")
)

// ReadBody reads at most limit bytes from r. A body over the limit fails
// with ErrBodyTooLarge. limit <= 0 selects DefaultMaxBodySize.
func ReadBody(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// ValidateJSONDepth rejects JSON nested deeper than limit levels.
// limit <= 0 selects DefaultMaxJSONDepth.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if depth != 0 {
				return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			if depth++; depth > limit {
				return fmt.Errorf("%w: max %d", ErrJSONTooDeep, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// DecodeJSON reads a bounded body from r, checks its nesting and decodes it
// into v. Unknown fields are rejected.
func DecodeJSON(r io.Reader, limit int, v any) error {
	data, err := ReadBody(r, limit)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	if err := ValidateJSONDepth(data, 0); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("backend rejected credentials")

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// flattenDetail renders the detail field, which is either a string or a
// list of validation entries like {"loc":[...],"msg":"..."}.
func flattenDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var entries []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &entries); err == nil && len(entries) > 0 {
		parts := make([]string, 0, len(entries))
		for _, entry := range entries {
			if len(entry.Loc) == 0 {
				parts = append(parts, entry.Msg)
				continue
			}
			loc := make([]string, 0, len(entry.Loc))
			for _, part := range entry.Loc {
				loc = append(loc, fmt.Sprint(part))
			}
			parts = append(parts, strings.Join(loc, ".")+": "+entry.Msg)
		}
		return strings.Join(parts, "; ")
	}

	var object struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		if object.Msg != "" {
			return object.Msg
		}
		if object.Message != "" {
			return object.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

package clob

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"polymaker/internal/core"
)

// APIError is a non-2xx response from the CLOB API.
type APIError struct {
	Status int
	Msg    string
}

func (e APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("clob api error status=%d", e.Status)
	}
	return fmt.Sprintf("clob api error status=%d msg=%q", e.Status, e.Msg)
}

var errorMessageKinds = map[string]error{
	"order not found":              core.ErrOrderNotFound,
	"order does not exist":         core.ErrOrderNotFound,
	"order already canceled":       core.ErrOrderNotFound,
	"not enough balance/allowance": core.ErrInsufficientBalance,
	"invalid order":                core.ErrOrderRejected,
}

// classifyAPIError maps a venue response onto the keeper's error taxonomy.
// Rate limits and 5xx responses are transient: the next scheduled cycle
// retries them; nothing retries inline.
func classifyAPIError(status int, msg string) error {
	apiErr := APIError{Status: status, Msg: msg}
	kinds := make([]error, 0, 2)
	switch {
	case status == http.StatusTooManyRequests:
		kinds = append(kinds, core.ErrRateLimited, core.ErrTransient)
	case status >= 500:
		kinds = append(kinds, core.ErrTransient)
	}
	if kind, ok := errorMessageKinds[normalizeMsg(msg)]; ok {
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return apiErr
	}
	return errors.Join(append([]error{error(apiErr)}, kinds...)...)
}

func normalizeMsg(msg string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(msg), "."))
}

package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

const maxErrorBody = 512

// StatusError classifies a non-200 provider response.
// 429 becomes ErrRateLimited; everything else is ErrProcessing.
func StatusError(provider string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody]
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrRateLimited, provider, status, detail)
	}
	return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrProcessing, provider, status, detail)
}

// TransportError wraps a failed provider round trip as ErrProcessing
func TransportError(provider string, err error) error {
	return fmt.Errorf("%w: %s request failed: %w", domain.ErrProcessing, provider, err)
}

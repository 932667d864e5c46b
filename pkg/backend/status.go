package backend

import (
	"fmt"
	"net/http"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
)

// StatusError translates a completed backend response's status code into a
// gateway error, or nil for 2xx. A backend 402 means the bypass credential
// was not honored — a misconfiguration, never retried. Any other non-2xx
// is backend_error, carrying the upstream status for diagnostics.
func StatusError(capabilityID string, resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		return gatewayerr.New(gatewayerr.BackendPaymentRequired,
			fmt.Sprintf("backend for %s did not honor the gateway bypass credential", capabilityID))
	}
	return gatewayerr.New(gatewayerr.BackendError,
		fmt.Sprintf("backend for %s returned status %d", capabilityID, resp.StatusCode))
}

// Retryable reports whether a failed attempt (transport err, or the status
// carried by resp) should be retried: transport errors and status >= 500
// are retryable; 4xx (including backend 402) never is.
func Retryable(resp *Response, transportErr error) bool {
	if transportErr != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode >= 500
}

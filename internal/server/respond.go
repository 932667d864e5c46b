package server

import (
	"encoding/json"
	"net/http"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
)

// writeJSON encodes v as the response body with status and the JSON
// content type header, matching the teacher's inline json.NewEncoder use at
// every handler rather than a templated response writer.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as the gateway's structured error body. A plain
// Go error (not a *gatewayerr.Error) is never shown to the caller verbatim
// — it is logged by the handler and reported as internal_error.
func writeError(w http.ResponseWriter, err error) {
	if gwErr, ok := err.(*gatewayerr.Error); ok {
		writeJSON(w, gwErr.HTTPStatus, gwErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, gatewayerr.New(gatewayerr.Internal, "internal error"))
}

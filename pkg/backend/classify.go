package backend

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/morezero/capability-gateway/pkg/registry"
)

// classify normalizes a raw backend response body per spec.md §4.7: JSON is
// parsed and passed through, image/PDF is base64-encoded with size and
// declared type, anything else is returned as text.
func classify(outputType registry.OutputType, contentType string, body []byte) (interface{}, error) {
	switch outputType {
	case registry.OutputJSON:
		if len(body) == 0 {
			return map[string]interface{}{}, nil
		}
		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse json body: %w", err)
		}
		return parsed, nil
	case registry.OutputImage, registry.OutputPDF:
		return map[string]interface{}{
			"data":        base64.StdEncoding.EncodeToString(body),
			"contentType": firstNonEmpty(contentType, defaultContentType(outputType)),
			"sizeBytes":   len(body),
		}, nil
	default:
		return strings.TrimSpace(string(body)), nil
	}
}

func defaultContentType(t registry.OutputType) string {
	switch t {
	case registry.OutputImage:
		return "image/png"
	case registry.OutputPDF:
		return "application/pdf"
	default:
		return "text/plain"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

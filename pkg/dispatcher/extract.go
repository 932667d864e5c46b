package dispatcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/registry"
)

// This table is a deliberately narrow heuristic, not a general regex
// engine: extend it only when the schema explicitly supports a new type.
var (
	urlPattern      = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	domainTLDs      = []string{"com", "org", "net", "io", "ai", "dev", "co", "app", "xyz", "me", "info", "tech", "gg", "tv"}
	domainPattern   = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]*\.(` + strings.Join(domainTLDs, "|") + `)\b`)
	dimensionPattern = regexp.MustCompile(`\b(\d+)\s*[xX×]\s*(\d+)\b`)
	pixelSizePattern = regexp.MustCompile(`\b(\d+)\s*px\b`)
	fullPagePattern  = regexp.MustCompile(`(?i)full\s*page`)
	formatPattern    = regexp.MustCompile(`(?i)\b(png|jpeg|jpg|webp|pdf)\b`)
)

// resolveParams builds a capability's call parameters from the literal
// params (or, when none are given, extraction from the task), fills fields
// still absent from schema defaults, then validates every required field is
// present.
func resolveParams(cap registry.Capability, req Request) (map[string]interface{}, error) {
	params := map[string]interface{}{}

	if req.Params != nil {
		for k, v := range req.Params {
			params[k] = v
		}
	} else {
		extractFromTask(req.Task, cap, params)
	}

	applyDefaults(cap, params)

	missing := missingRequired(cap, params)
	if len(missing) > 0 {
		return nil, gatewayerr.New(gatewayerr.MissingParams,
			fmt.Sprintf("missing required params: %s", strings.Join(missing, ", "))).
			WithDetails(map[string]interface{}{
				"missing":   missing,
				"schema":    cap.InputSchema,
				"extracted": params,
			})
	}
	return params, nil
}

// extractFromTask applies the extraction table in order, in spec.md §4.5's
// stated order, assigning the first occurrence of each pattern to a
// matching input whose name or description names it.
func extractFromTask(task string, cap registry.Capability, params map[string]interface{}) {
	if task == "" {
		return
	}

	var extractedURL string
	if m := urlPattern.FindString(task); m != "" {
		extractedURL = m
		if target := fieldNamedOrDescribed(cap, "url"); target != "" {
			params[target] = m
		} else if _, ok := cap.InputSchema["data"]; ok {
			params["data"] = m
		}
	}

	if m := emailPattern.FindString(task); m != "" {
		if target := fieldNamedOrDescribed(cap, "email"); target != "" {
			params[target] = m
		}
	}

	if m := domainPattern.FindString(task); m != "" {
		if _, ok := cap.InputSchema["domain"]; ok {
			params["domain"] = m
		}
		if extractedURL == "" {
			if _, ok := params["url"]; !ok {
				if _, hasURLField := cap.InputSchema["url"]; hasURLField {
					params["url"] = "https://" + m
				}
			}
		}
	}

	if m := dimensionPattern.FindStringSubmatch(task); m != nil {
		if _, ok := cap.InputSchema["width"]; ok {
			if w, err := strconv.Atoi(m[1]); err == nil {
				params["width"] = float64(w)
			}
		}
		if _, ok := cap.InputSchema["height"]; ok {
			if h, err := strconv.Atoi(m[2]); err == nil {
				params["height"] = float64(h)
			}
		}
	}

	if m := pixelSizePattern.FindStringSubmatch(task); m != nil {
		if _, ok := cap.InputSchema["size"]; ok {
			if s, err := strconv.Atoi(m[1]); err == nil {
				params["size"] = float64(s)
			}
		}
	}

	if fullPagePattern.MatchString(task) {
		if _, ok := cap.InputSchema["fullPage"]; ok {
			params["fullPage"] = true
		}
	}

	if m := formatPattern.FindString(task); m != "" {
		if _, ok := cap.InputSchema["format"]; ok {
			params["format"] = strings.ToLower(m)
		}
	}
}

// fieldNamedOrDescribed returns the schema field named exactly name, or the
// first field whose description mentions name, or "" if neither exists.
func fieldNamedOrDescribed(cap registry.Capability, name string) string {
	if _, ok := cap.InputSchema[name]; ok {
		return name
	}
	for fieldName, field := range cap.InputSchema {
		if strings.Contains(strings.ToLower(field.Description), name) {
			return fieldName
		}
	}
	return ""
}

func applyDefaults(cap registry.Capability, params map[string]interface{}) {
	for name, field := range cap.InputSchema {
		if _, present := params[name]; !present && field.Default != nil {
			params[name] = field.Default
		}
	}
}

func missingRequired(cap registry.Capability, params map[string]interface{}) []string {
	var missing []string
	for name, field := range cap.InputSchema {
		if !field.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

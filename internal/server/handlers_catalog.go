package server

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/morezero/capability-gateway/pkg/registry"
)

const healthCheckTimeout = 5 * time.Second

type healthBody struct {
	Status           string `json:"status"`
	CapabilityCount  int    `json:"capabilityCount"`
	Time             string `json:"time"`
}

// handleHealth reports liveness and the current capability count,
// pinging the database so a broken pool surfaces as unhealthy rather than
// only failing on the next billed request.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	if err := g.pool.Ping(ctx); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthBody{
		Status:          status,
		CapabilityCount: len(g.registry.List()),
		Time:            time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports every capability's circuit breaker state and
// counters.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"circuits": g.reliability.Snapshot(),
		"gateway":  gatewayVersion,
	})
}

type capabilitiesBody struct {
	Capabilities []registry.Capability `json:"capabilities"`
	Circuits     map[string]interface{} `json:"circuits,omitempty"`
}

// handleCapabilities dumps the full registry, optionally overlaying each
// capability's circuit state when ?reliability=true.
func (g *Gateway) handleCapabilities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body := capabilitiesBody{Capabilities: g.registry.List()}
	if r.URL.Query().Get("reliability") == "true" {
		snapshot := g.reliability.Snapshot()
		overlay := make(map[string]interface{}, len(snapshot))
		for id, s := range snapshot {
			overlay[id] = s
		}
		body.Circuits = overlay
	}
	writeJSON(w, http.StatusOK, body)
}

// handleMCP renders the same catalog as agent-tool descriptors using the
// MCP tool schema, so an MCP-aware agent can introspect the gateway's
// capabilities the same way it introspects any other tool server.
func (g *Gateway) handleMCP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caps := g.registry.List()
	tools := make([]mcp.Tool, 0, len(caps))
	for _, c := range caps {
		tools = append(tools, mcp.Tool{
			Name:        c.ID,
			Description: mcpDescription(c),
			InputSchema: mcpInputSchema(c),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func mcpDescription(c registry.Capability) string {
	desc := c.Description
	if desc == "" {
		desc = c.Name
	}
	return desc + " (cost: " + c.Cost() + ")"
}

func mcpInputSchema(c registry.Capability) mcp.ToolInputSchema {
	properties := make(map[string]interface{}, len(c.InputSchema))
	var required []string
	for name, field := range c.InputSchema {
		properties[name] = map[string]interface{}{
			"type":        string(field.Type),
			"description": field.Description,
		}
		if field.Required {
			required = append(required, name)
		}
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// handleProviders groups partner and discovered capabilities by provider.
func (g *Gateway) handleProviders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": g.registry.Providers()})
}

type discoverBody struct {
	NativeMatches      []registry.Capability `json:"nativeMatches"`
	MarketplaceResults []registry.Capability `json:"marketplaceResults"`
}

// handleDiscover is a read-only passthrough: it never activates a
// marketplace candidate into the registry, unlike the dispatcher's
// discovery fallback inside /do.
func (g *Gateway) handleDiscover(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query().Get("q")
	body := discoverBody{NativeMatches: g.dispatcher.MatchCandidates(q)}

	if g.discovery != nil {
		results, err := g.discovery.Search(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		body.MarketplaceResults = results
	}
	writeJSON(w, http.StatusOK, body)
}

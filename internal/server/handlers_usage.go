package server

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/morezero/capability-gateway/pkg/db"
)

// usageCaller resolves which caller's data a usage query may see, per
// spec.md §4.3: the caller's own wallet header always wins, and a query
// param naming a different wallet is never honored — it is silently
// rewritten to the header wallet (or to "anonymous" when there is no
// header at all) — unless the request comes from an allow-listed internal
// peer, which may query any wallet by name via the query param alone.
func (g *Gateway) usageCaller(r *http.Request) string {
	header := r.Header.Get("x-wallet-address")
	query := r.URL.Query().Get("caller")

	if query != "" && g.allowList.AllowsRequest(r) {
		return query
	}
	if header != "" {
		return header
	}
	return "anonymous"
}

func usageDateRange(r *http.Request) (db.DateRange, error) {
	var rng db.DateRange
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return rng, err
		}
		rng.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return rng, err
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		rng.To = &end
	}
	return rng, nil
}

func writeBadDateRange(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from/to date, expected YYYY-MM-DD"})
}

// handleUsageTotals reports the caller's aggregate spend and success rate.
func (g *Gateway) handleUsageTotals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rng, err := usageDateRange(r)
	if err != nil {
		writeBadDateRange(w)
		return
	}
	caller := g.usageCaller(r)

	totals, err := g.ledger.Totals(r.Context(), caller, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"caller": caller, "totals": totals})
}

// handleUsageByCapability reports the caller's spend broken out per capability.
func (g *Gateway) handleUsageByCapability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rng, err := usageDateRange(r)
	if err != nil {
		writeBadDateRange(w)
		return
	}
	caller := g.usageCaller(r)

	rows, err := g.ledger.ByCapability(r.Context(), caller, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"caller": caller, "capabilities": rows})
}

// handleUsageTimeline reports the caller's spend per day.
func (g *Gateway) handleUsageTimeline(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rng, err := usageDateRange(r)
	if err != nil {
		writeBadDateRange(w)
		return
	}
	caller := g.usageCaller(r)

	rows, err := g.ledger.Timeline(r.Context(), caller, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"caller": caller, "timeline": rows})
}

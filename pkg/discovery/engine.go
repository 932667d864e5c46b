// Package discovery implements the Discovery Engine: when no registered
// capability matches a task, it queries the external marketplace, filters
// and normalizes the results, and activates the best candidate into the
// registry, per spec.md §4.6.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/morezero/capability-gateway/pkg/backend"
	"github.com/morezero/capability-gateway/pkg/bazaar"
	"github.com/morezero/capability-gateway/pkg/registry"
)

const (
	logPrefix = "discovery:engine"
	cacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	result    []registry.Capability
	expiresAt time.Time
}

// Engine queries the marketplace, caches results, and activates candidates
// into a Registry. It satisfies dispatcher.Discoverer.
type Engine struct {
	bazaar   *bazaar.Client
	registry *registry.Registry

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates an Engine backed by a marketplace client and the gateway's
// shared registry.
func New(bazaarClient *bazaar.Client, reg *registry.Registry) *Engine {
	return &Engine{
		bazaar:   bazaarClient,
		registry: reg,
		cache:    make(map[string]cacheEntry),
	}
}

// Discover implements dispatcher.Discoverer: it derives a search term from
// task, queries the marketplace (through the 5-minute cache), normalizes
// and filters results, and activates the top candidate.
func (e *Engine) Discover(ctx context.Context, task string) (*registry.Capability, bool, error) {
	term := searchTerm(task)
	if term == "" {
		return nil, false, nil
	}

	candidates, err := e.search(ctx, term)
	if err != nil {
		return nil, false, fmt.Errorf("%s - search: %w", logPrefix, err)
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}

	top := candidates[0]
	e.registry.Activate(top)
	return &top, true, nil
}

// Search runs the same marketplace lookup Discover uses, including the
// 5-minute cache and the SSRF/cost-ceiling filters, but never activates
// the results into the registry — used for GET /discover's read-only
// passthrough, per spec.md §6.
func (e *Engine) Search(ctx context.Context, task string) ([]registry.Capability, error) {
	term := searchTerm(task)
	if term == "" {
		return nil, nil
	}
	return e.search(ctx, term)
}

func (e *Engine) search(ctx context.Context, term string) ([]registry.Capability, error) {
	e.mu.Lock()
	if entry, ok := e.cache[term]; ok && time.Now().Before(entry.expiresAt) {
		e.mu.Unlock()
		return entry.result, nil
	}
	e.mu.Unlock()

	items, err := e.bazaar.Search(ctx, bazaar.SearchOptions{Query: term, Type: "http"})
	if err != nil {
		return nil, err
	}

	var kept []registry.Capability
	for _, item := range items {
		cap, ok := normalize(item)
		if !ok {
			continue
		}
		if backend.CheckSSRF(cap.Endpoint) != nil {
			continue
		}
		kept = append(kept, cap)
	}

	e.mu.Lock()
	e.cache[term] = cacheEntry{result: kept, expiresAt: time.Now().Add(cacheTTL)}
	e.mu.Unlock()

	return kept, nil
}

package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New([]registry.Capability{
		{
			ID:         "screenshot",
			Name:       "Screenshot",
			Keywords:   []string{"screenshot", "capture", "render", "webpage"},
			Endpoint:   "http://backend/render",
			Method:     registry.MethodPOST,
			OutputType: registry.OutputImage,
			SourceTier: registry.Native,
			CostMicros: 10000,
			InputSchema: registry.InputSchema{
				"url": {Type: registry.FieldString, Required: true, Description: "Page URL"},
			},
		},
		{
			ID:         "ocr",
			Name:       "OCR",
			Keywords:   []string{"ocr", "text", "image", "recognition"},
			Endpoint:   "http://backend/ocr",
			Method:     registry.MethodPOST,
			OutputType: registry.OutputJSON,
			SourceTier: registry.Native,
			CostMicros: 10000,
			InputSchema: registry.InputSchema{
				"url": {Type: registry.FieldString, Required: true},
			},
		},
		{
			ID:         "qr-code",
			Name:       "QR Code",
			Keywords:   []string{"qr", "code", "barcode"},
			Endpoint:   "http://backend/qr",
			Method:     registry.MethodPOST,
			OutputType: registry.OutputImage,
			SourceTier: registry.Native,
			CostMicros: 2000,
			InputSchema: registry.InputSchema{
				"data": {Type: registry.FieldString, Required: true},
				"size": {Type: registry.FieldNumber, Default: float64(256)},
			},
		},
	})
}

func TestResolveNaturalLanguageScreenshot(t *testing.T) {
	d := New(testRegistry(t), nil)
	res, err := d.Resolve(context.Background(), Request{Task: "take a screenshot of https://example.com"})
	if err != nil {
		t.Fatalf("dispatcher_test - unexpected error: %v", err)
	}
	if res.Capability.ID != "screenshot" {
		t.Fatalf("dispatcher_test - matched %q, want screenshot", res.Capability.ID)
	}
	if res.Params["url"] != "https://example.com" {
		t.Errorf("dispatcher_test - url = %v, want https://example.com", res.Params["url"])
	}
}

func TestResolveExplicitCapabilityBypassesMatcher(t *testing.T) {
	d := New(testRegistry(t), nil)
	res, err := d.Resolve(context.Background(), Request{
		CapabilityID: "qr-code",
		Params:       map[string]interface{}{"data": "hello", "size": float64(512)},
	})
	if err != nil {
		t.Fatalf("dispatcher_test - unexpected error: %v", err)
	}
	if res.Capability.ID != "qr-code" {
		t.Fatalf("dispatcher_test - capability = %q, want qr-code", res.Capability.ID)
	}
	if res.Params["size"] != float64(512) {
		t.Errorf("dispatcher_test - size = %v, want 512", res.Params["size"])
	}
	if res.MultiStepHint {
		t.Error("dispatcher_test - expected no multiStepHint for qr-code request")
	}
}

func TestResolveOverBudgetFailsBeforePayment(t *testing.T) {
	d := New(testRegistry(t), nil)
	_, err := d.Resolve(context.Background(), Request{Task: "ocr this image", Budget: "$0.001"})
	if err == nil {
		t.Fatal("dispatcher_test - expected over_budget error")
	}
}

func TestResolveMissingRequiredParam(t *testing.T) {
	d := New(testRegistry(t), nil)
	_, err := d.Resolve(context.Background(), Request{Task: "take a screenshot please"})
	if err == nil {
		t.Fatal("dispatcher_test - expected missing_params error (no url in task)")
	}
}

func TestResolveUnknownCapabilitySuggestsClosestID(t *testing.T) {
	d := New(testRegistry(t), nil)
	_, err := d.Resolve(context.Background(), Request{CapabilityID: "qr-cod"})
	if err == nil {
		t.Fatal("dispatcher_test - expected unknown_capability error")
	}
	var gwErr *gatewayerr.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("dispatcher_test - error is not *gatewayerr.Error: %v", err)
	}
	if gwErr.ErrCode != gatewayerr.UnknownCapability {
		t.Fatalf("dispatcher_test - code = %q, want unknown_capability", gwErr.ErrCode)
	}
	details, ok := gwErr.Details.(map[string]string)
	if !ok {
		t.Fatalf("dispatcher_test - expected Details to carry a didYouMean suggestion, got %#v", gwErr.Details)
	}
	if details["didYouMean"] != "qr-code" {
		t.Errorf("dispatcher_test - didYouMean = %q, want qr-code", details["didYouMean"])
	}
}

func TestResolveNoMatchWithoutDiscoverer(t *testing.T) {
	d := New(testRegistry(t), nil)
	_, err := d.Resolve(context.Background(), Request{Task: "completely unrelated gibberish zzz"})
	if err == nil {
		t.Fatal("dispatcher_test - expected no_matching_capability error")
	}
}

type stubDiscoverer struct {
	cap   registry.Capability
	found bool
}

func (s stubDiscoverer) Discover(ctx context.Context, task string) (*registry.Capability, bool, error) {
	if !s.found {
		return nil, false, nil
	}
	return &s.cap, true, nil
}

func TestResolveFallsBackToDiscovery(t *testing.T) {
	discovered := registry.Capability{
		ID:         "discovered:weather-lookup",
		Name:       "Weather Lookup",
		Endpoint:   "http://marketplace-backend/weather",
		Method:     registry.MethodGET,
		OutputType: registry.OutputJSON,
		SourceTier: registry.Discovered,
	}
	d := New(testRegistry(t), stubDiscoverer{cap: discovered, found: true})
	res, err := d.Resolve(context.Background(), Request{Task: "what's the weather like today"})
	if err != nil {
		t.Fatalf("dispatcher_test - unexpected error: %v", err)
	}
	if res.Capability.ID != "discovered:weather-lookup" {
		t.Errorf("dispatcher_test - capability = %q, want discovered:weather-lookup", res.Capability.ID)
	}
}

func TestLooksLikeChainDetectsSequencingAndMultiVerb(t *testing.T) {
	if !looksLikeChain("scrape https://example.com and then convert to pdf") {
		t.Error("dispatcher_test - expected chain hint for sequencing phrase")
	}
	if !looksLikeChain("scrape this page and generate a pdf") {
		t.Error("dispatcher_test - expected chain hint for 2 distinct verbs")
	}
	if looksLikeChain("take a screenshot of https://example.com") {
		t.Error("dispatcher_test - expected no chain hint for single-verb task")
	}
}

package paymentgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/morezero/capability-gateway/pkg/facilitator"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
)

func fakeFacilitator(t *testing.T, valid bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(facilitator.VerifyResponse{IsValid: valid, InvalidReason: "bad signature"})
		case "/settle":
			json.NewEncoder(w).Encode(facilitator.SettleResponse{Success: true, TxHash: "0xabc"})
		}
	}))
}

func testGate(t *testing.T, valid bool) (*Gate, *httptest.Server) {
	t.Helper()
	srv := fakeFacilitator(t, valid)
	return New(Config{
		Facilitator:    facilitator.New(srv.URL),
		FacilitatorURL: srv.URL,
		PayoutAddress:  "0xPayout",
		Network:        "base-sepolia",
		Asset:          "USDC",
		Scheme:         "exact",
		BypassKey:      "test-bypass",
		AllowList:      NewPeerAllowList(true, ""),
	}), srv
}

func TestVerifyMissingPaymentReturns402(t *testing.T) {
	g, srv := testGate(t, true)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Test-Key", "wrong-key")

	_, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", "Screenshot capability"))
	if err == nil {
		t.Fatalf("gate_test - expected payment_required error")
	}
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.PaymentRequired {
		t.Fatalf("gate_test - got %v, want payment_required", err)
	}
}

func TestVerifyBypassFromAllowedLoopbackPeer(t *testing.T) {
	g, srv := testGate(t, true)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Test-Key", "test-bypass")

	proof, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", ""))
	if err != nil {
		t.Fatalf("gate_test - unexpected error: %v", err)
	}
	if proof.Raw != "" {
		t.Errorf("gate_test - expected bypassed proof to carry no raw payment")
	}
}

func TestVerifyBypassFromDisallowedPeerIsIgnored(t *testing.T) {
	g, srv := testGate(t, true)
	defer srv.Close()
	g.cfg.AllowList = NewPeerAllowList(false, "")

	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Test-Key", "test-bypass")

	_, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", ""))
	if err == nil {
		t.Fatalf("gate_test - expected the bypass key from a disallowed peer to be treated as absent")
	}
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.PaymentRequired {
		t.Fatalf("gate_test - got %v, want payment_required", err)
	}
}

func TestVerifyValidPaymentSucceeds(t *testing.T) {
	g, srv := testGate(t, true)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Payment", "signed-proof-abc")

	proof, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", ""))
	if err != nil {
		t.Fatalf("gate_test - unexpected error: %v", err)
	}
	if proof.ID == "" {
		t.Errorf("gate_test - expected a non-empty proof id")
	}
}

func TestVerifyInvalidPaymentRejected(t *testing.T) {
	g, srv := testGate(t, false)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Payment", "signed-proof-abc")

	_, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", ""))
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.InvalidPayment {
		t.Fatalf("gate_test - got %v, want invalid_payment", err)
	}
}

func TestVerifyReplayedPaymentRejected(t *testing.T) {
	g, srv := testGate(t, true)
	defer srv.Close()

	makeReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/do", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		req.Header.Set("X-Payment", "signed-proof-same")
		return req
	}

	if _, err := g.Verify(context.Background(), makeReq(), g.Requirements(10000, "do:screenshot", "")); err != nil {
		t.Fatalf("gate_test - first verification unexpectedly failed: %v", err)
	}

	_, err := g.Verify(context.Background(), makeReq(), g.Requirements(10000, "do:screenshot", ""))
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.PaymentReplay {
		t.Fatalf("gate_test - got %v, want payment_replay", err)
	}
}

func TestVerifyRejectedProofCanBeRetried(t *testing.T) {
	valid := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(facilitator.VerifyResponse{IsValid: valid, InvalidReason: "bad signature"})
		case "/settle":
			json.NewEncoder(w).Encode(facilitator.SettleResponse{Success: true, TxHash: "0xabc"})
		}
	}))
	defer srv.Close()

	g := New(Config{
		Facilitator:    facilitator.New(srv.URL),
		FacilitatorURL: srv.URL,
		AllowList:      NewPeerAllowList(true, ""),
	})

	makeReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/do", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		req.Header.Set("X-Payment", "signed-proof-retry")
		return req
	}

	_, err := g.Verify(context.Background(), makeReq(), g.Requirements(10000, "do:screenshot", ""))
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.InvalidPayment {
		t.Fatalf("gate_test - first attempt: got %v, want invalid_payment", err)
	}

	valid = true
	proof, err := g.Verify(context.Background(), makeReq(), g.Requirements(10000, "do:screenshot", ""))
	if err != nil {
		t.Fatalf("gate_test - retry with the same proof after a rejected verification should succeed, got %v", err)
	}
	if proof.ID == "" {
		t.Errorf("gate_test - expected a non-empty proof id on retry")
	}
}

func TestVerifyFacilitatorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // force a transport error: the facilitator is unreachable.

	g := New(Config{
		Facilitator:    facilitator.New(srv.URL),
		FacilitatorURL: srv.URL,
		AllowList:      NewPeerAllowList(true, ""),
	})
	req := httptest.NewRequest(http.MethodPost, "/do", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Payment", "signed-proof-abc")

	_, err := g.Verify(context.Background(), req, g.Requirements(10000, "do:screenshot", ""))
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok || gwErr.ErrCode != gatewayerr.VerificationUnavailable {
		t.Fatalf("gate_test - got %v, want verification_unavailable", err)
	}
}

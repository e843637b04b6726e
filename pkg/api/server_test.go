package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fairlend/fairlend/pkg/core/attest"
	"github.com/fairlend/fairlend/pkg/core/engine"
	"github.com/fairlend/fairlend/pkg/core/ledger"
	"github.com/fairlend/fairlend/pkg/util"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	attestor, err := attest.Generate()
	if err != nil {
		t.Fatalf("attestor: %v", err)
	}
	eng := engine.New(ledger.New(util.RealClock{}), attestor, engine.Config{})
	return NewServer(eng, nil)
}

func do(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func submitReq(side string, amount int64) SubmitOrderRequest {
	req := SubmitOrderRequest{
		Owner:    "0x1111111111111111111111111111111111111111",
		Side:     side,
		Asset:    "USDC",
		Amount:   amount,
		RateBps:  500,
		LTV:      70,
		TermDays: 30,
	}
	if side == "borrow" {
		req.Owner = "0x2222222222222222222222222222222222222222"
		req.RateBps = 700
		req.LTV = 60
		req.TermDays = 20
	}
	return req
}

func TestSubmitAndMatchOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, "POST", "/api/v1/orders", submitReq("lend", 1000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit lend: status %d, body %s", rec.Code, rec.Body.String())
	}
	var first SubmitOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &first)
	if first.OrderID == "" || first.Match != nil {
		t.Fatalf("lend response = %+v, want id and no match", first)
	}

	rec = do(s, "POST", "/api/v1/orders", submitReq("borrow", 1000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit borrow: status %d", rec.Code)
	}
	var second SubmitOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &second)
	if second.Match == nil {
		t.Fatal("borrow response carried no match")
	}
	if second.Match.LendOrderID != first.OrderID {
		t.Errorf("matched lend %s, want %s", second.Match.LendOrderID, first.OrderID)
	}

	// The attestation in the response verifies through the verify endpoint.
	var attestorInfo AttestorInfo
	rec = do(s, "GET", "/api/v1/attestor", nil)
	json.Unmarshal(rec.Body.Bytes(), &attestorInfo)

	rec = do(s, "POST", "/api/v1/attestations/verify", VerifyRequest{
		Message:   second.Match.Message,
		Signature: second.Match.Signature,
		PublicKey: attestorInfo.PublicKey,
	})
	var verdict VerifyResponse
	json.Unmarshal(rec.Body.Bytes(), &verdict)
	if !verdict.Valid {
		t.Error("attestation from match response failed verification")
	}

	// Positions are readable.
	rec = do(s, "GET", "/api/v1/positions/"+second.Match.BorrowingID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get position: status %d", rec.Code)
	}
	var pos PositionInfo
	json.Unmarshal(rec.Body.Bytes(), &pos)
	if pos.Amount != 1000 || pos.Role != "borrowing" {
		t.Errorf("position = %+v, want amount 1000 role borrowing", pos)
	}
}

func TestSubmitInvalidOrder(t *testing.T) {
	s := newTestServer(t)
	req := submitReq("lend", 0) // zero amount
	if rec := do(s, "POST", "/api/v1/orders", req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHiddenOrdersWithheld(t *testing.T) {
	s := newTestServer(t)

	req := submitReq("lend", 1000)
	req.Hidden = true
	rec := do(s, "POST", "/api/v1/orders", req)
	var resp SubmitOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	// Neither the listing nor direct lookup reveals a hidden pending order.
	rec = do(s, "GET", "/api/v1/orders?side=lend&asset=USDC", nil)
	var listed []OrderInfo
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 0 {
		t.Errorf("hidden order listed publicly: %+v", listed)
	}
	if rec = do(s, "GET", "/api/v1/orders/"+resp.OrderID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("hidden pending order lookup: status %d, want 404", rec.Code)
	}

	// Once matched it becomes visible with its commitment.
	do(s, "POST", "/api/v1/orders", submitReq("borrow", 1000))
	rec = do(s, "GET", "/api/v1/orders/"+resp.OrderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("matched hidden order lookup: status %d", rec.Code)
	}
	var o OrderInfo
	json.Unmarshal(rec.Body.Bytes(), &o)
	if o.Status != "matched" || o.ProofRef == "" {
		t.Errorf("matched hidden order = %+v, want matched with proofRef", o)
	}
}

func TestCancelEndpointIdempotent(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, "POST", "/api/v1/orders", submitReq("lend", 1000))
	var resp SubmitOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	for i := 0; i < 2; i++ {
		if rec := do(s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{OrderID: resp.OrderID}); rec.Code != http.StatusOK {
			t.Fatalf("cancel attempt %d: status %d", i+1, rec.Code)
		}
	}
	if rec := do(s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{OrderID: "missing"}); rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if rec := do(s, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
}

package api

import "github.com/fairlend/fairlend/pkg/core/fairness"

// REST request/response shapes.

type SubmitOrderRequest struct {
	Owner            string `json:"owner"` // 0x address
	Side             string `json:"side"`  // "lend" | "borrow"
	Asset            string `json:"asset"`
	Amount           int64  `json:"amount"`
	RateBps          int64  `json:"rateBps"`
	LTV              int64  `json:"ltv"`
	TermDays         int64  `json:"termDays"`
	Hidden           bool   `json:"hidden"`
	CollateralAsset  string `json:"collateralAsset,omitempty"`
	CollateralAmount int64  `json:"collateralAmount,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID string     `json:"orderId"`
	Match   *MatchInfo `json:"match,omitempty"`
	Warning string     `json:"warning,omitempty"` // e.g. attestation unavailable, order resting
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

// OrderInfo is the public view of an order. Hidden pending orders never
// appear in listings; once matched their proofRef commitment does.
type OrderInfo struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Side          string `json:"side"`
	Asset         string `json:"asset"`
	Amount        int64  `json:"amount"`
	RateBps       int64  `json:"rateBps"`
	LTV           int64  `json:"ltv"`
	TermDays      int64  `json:"termDays"`
	Status        string `json:"status"`
	Hidden        bool   `json:"hidden"`
	CreatedAt     int64  `json:"createdAt"` // unix ms
	FairnessScore int64  `json:"fairnessScore,omitempty"`
	ProofRef      string `json:"proofRef,omitempty"` // hex
}

type MatchInfo struct {
	LendOrderID   string             `json:"lendOrderId"`
	BorrowOrderID string             `json:"borrowOrderId"`
	Score         int64              `json:"score"`
	FinalRateBps  int64              `json:"finalRateBps"`
	Breakdown     fairness.Breakdown `json:"breakdown"`
	Message       string             `json:"message"`   // hex canonical message
	Signature     string             `json:"signature"` // hex
	AttestedAt    int64              `json:"attestedAt"`
	LendingID     string             `json:"lendingPositionId"`
	BorrowingID   string             `json:"borrowingPositionId"`
}

type PositionInfo struct {
	ID                        string           `json:"id"`
	CounterpartID             string           `json:"counterpartId"`
	OrderID                   string           `json:"orderId"`
	Owner                     string           `json:"owner"`
	Role                      string           `json:"role"`
	Asset                     string           `json:"asset"`
	Amount                    int64            `json:"amount"`
	RateBps                   int64            `json:"rateBps"`
	TermDays                  int64            `json:"termDays"`
	StartDate                 int64            `json:"startDate"` // unix ms
	EndDate                   int64            `json:"endDate"`   // unix ms
	Status                    string           `json:"status"`
	AccruedInterest           int64            `json:"accruedInterest"`
	Overdue                   bool             `json:"overdue"`
	Collateral                []CollateralInfo `json:"collateral,omitempty"`
	LiquidationThresholdPrice int64            `json:"liquidationThresholdPrice,omitempty"`
}

type CollateralInfo struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type AttestorInfo struct {
	PublicKey string `json:"publicKey"` // hex, empty when unprovisioned
}

type VerifyRequest struct {
	Message   string `json:"message"`   // hex
	Signature string `json:"signature"` // hex
	PublicKey string `json:"publicKey"` // hex
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WebSocket shapes.

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

type WSMatchEvent struct {
	Channel string    `json:"channel"` // "matches"
	Data    MatchInfo `json:"data"`
}

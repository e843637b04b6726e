// Package settle holds the settlement-side collaborators: the consumer of
// attested matches and the vesting registry feeding the priority bonus.
package settle

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fairlend/fairlend/pkg/core/attest"
)

// LogSettlement is the devnet settlement client: it verifies the attestation
// against the registered authority key and logs the outcome instead of
// moving funds. A production client submits the same payload to the ledger
// network.
type LogSettlement struct {
	authorityKey []byte
	log          *zap.Logger
}

func NewLogSettlement(authorityKey []byte, log *zap.Logger) *LogSettlement {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSettlement{authorityKey: authorityKey, log: log}
}

func (s *LogSettlement) SubmitAttested(_ context.Context, lendOrderID, borrowOrderID string, att attest.Attestation) {
	if !attest.Verify(att.Message, att.Signature, s.authorityKey) {
		// Never act on an unverifiable attestation.
		s.log.Error("settlement_rejected_signature",
			zap.String("lend", lendOrderID),
			zap.String("borrow", borrowOrderID),
		)
		return
	}
	s.log.Info("settlement_submitted",
		zap.String("lend", lendOrderID),
		zap.String("borrow", borrowOrderID),
		zap.String("signature", hex.EncodeToString(att.Signature)),
		zap.Int64("attested_at", att.Timestamp),
	)
}

// StaticVesting is an in-memory vesting registry: a set of addresses with an
// active priority flag.
type StaticVesting struct {
	mu    sync.RWMutex
	addrs map[common.Address]struct{}
}

func NewStaticVesting(addrs ...common.Address) *StaticVesting {
	v := &StaticVesting{addrs: make(map[common.Address]struct{})}
	for _, a := range addrs {
		v.addrs[a] = struct{}{}
	}
	return v
}

func (v *StaticVesting) Grant(addr common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.addrs[addr] = struct{}{}
}

func (v *StaticVesting) Revoke(addr common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.addrs, addr)
}

func (v *StaticVesting) IsPriorityEligible(addr common.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.addrs[addr]
	return ok
}

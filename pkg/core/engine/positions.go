package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/core/position"
	"github.com/fairlend/fairlend/pkg/oracle"
)

// LoadPositions seeds the in-memory position table, used at boot to
// rehydrate from the archive.
func (e *Engine) LoadPositions(ps []position.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range ps {
		stored := p
		e.positions[p.ID] = &stored
	}
}

func (e *Engine) GetPosition(id string) (position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[id]
	if !ok {
		return position.Position{}, fmt.Errorf("position %s: %w", id, core.ErrNotFound)
	}
	return *p, nil
}

func (e *Engine) PositionsByOwner(owner common.Address) []position.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []position.Position
	for _, p := range e.positions {
		if p.Owner == owner {
			out = append(out, *p)
		}
	}
	return out
}

// RepayPosition records voluntary full repayment. Both legs of the match
// complete together: the borrower repaid, the lender is made whole.
func (e *Engine) RepayPosition(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[id]
	if !ok {
		return fmt.Errorf("position %s: %w", id, core.ErrNotFound)
	}
	if err := p.Complete(); err != nil {
		return err
	}
	if counter, ok := e.positions[p.CounterpartID]; ok {
		if err := counter.Complete(); err != nil {
			// Counterpart already terminal; the repayment itself stands.
			e.cfg.Logger.Warn("counterpart_complete_failed", zap.String("id", counter.ID), zap.Error(err))
		} else {
			e.persistPosition(*counter)
		}
	}
	e.persistPosition(*p)
	e.cfg.Logger.Info("position_repaid", zap.String("id", id))
	return nil
}

// LiquidatePosition seizes an eligible borrowing position. Eligibility is
// overdue term, or, when an oracle and collateral are present, collateral
// price at or below the liquidation threshold. A stale quote refuses the
// price-based path rather than liquidating on bad data.
func (e *Engine) LiquidatePosition(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[id]
	if !ok {
		return fmt.Errorf("position %s: %w", id, core.ErrNotFound)
	}
	if p.Role != position.RoleBorrowing {
		return fmt.Errorf("%w: %s is a lending position", ErrNotLiquidatable, id)
	}
	if p.Status != position.StatusActive {
		return fmt.Errorf("%w: %s is %s", position.ErrNotActive, id, p.Status)
	}

	now := e.cfg.Clock.Now()
	eligible := p.Overdue(now)
	if !eligible {
		under, err := e.underCollateralized(ctx, p, now)
		if err != nil {
			return err
		}
		eligible = under
	}
	if !eligible {
		return fmt.Errorf("%w: %s", ErrNotLiquidatable, id)
	}

	if err := p.Liquidate(); err != nil {
		return err
	}
	// The lender's leg closes out of the seized collateral.
	if counter, ok := e.positions[p.CounterpartID]; ok && counter.Status == position.StatusActive {
		_ = counter.Complete()
		e.persistPosition(*counter)
	}
	e.persistPosition(*p)
	e.cfg.Logger.Info("position_liquidated",
		zap.String("id", id),
		zap.Bool("overdue", p.Overdue(now)),
	)
	return nil
}

func (e *Engine) underCollateralized(ctx context.Context, p *position.Position, now time.Time) (bool, error) {
	if e.cfg.Oracle == nil || len(p.Collateral) == 0 || p.LiquidationThresholdPrice <= 0 {
		return false, nil
	}
	q, err := e.cfg.Oracle.GetPrice(ctx, p.Collateral[0].Asset)
	if err != nil {
		return false, err
	}
	if err := oracle.Fresh(q, now, e.cfg.OracleMaxAge); err != nil {
		return false, err
	}
	return q.Price <= p.LiquidationThresholdPrice, nil
}

func (e *Engine) persistPosition(p position.Position) {
	if e.cfg.Archive == nil {
		return
	}
	if err := e.cfg.Archive.SavePosition(p); err != nil {
		e.cfg.Logger.Warn("archive_position_failed", zap.String("id", p.ID), zap.Error(err))
	}
}

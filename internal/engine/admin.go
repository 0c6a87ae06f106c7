package engine

import (
	"fmt"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// UpdateConfig replaces the game configuration.
func (e *Engine) UpdateConfig(c Caller, cfg Config, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		if !c.Admin {
			return fmt.Errorf("%w: config updates are admin only", ErrUnauthorized)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		t.cfg = cfg
		t.cfgChanged = true
		t.emit(model.ConfigUpdated{By: c.ID, At: now})
		return nil
	})
}

// MintPoints creates new points in the platform pool.
func (e *Engine) MintPoints(c Caller, amount ledger.Amount, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		if !c.Admin {
			return fmt.Errorf("%w: minting is admin only", ErrUnauthorized)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: mint amount", ErrInvalidAmount)
		}
		t.platformPool = t.platformPool.Add(amount)
		t.totalSupply = t.totalSupply.Add(amount)
		t.emit(model.PointsMinted{Amount: amount, At: now})
		return nil
	})
}

// Package reward implements the per-account reward accrual ledger.
//
// Reward accrues proportionally to (balance held) x (blocks elapsed) x
// (rewardPerBlock) / (totalSupply), independent of how many times the
// balance changes during the holding period and of the ordering of
// touches across accounts. Settlement must run on both sides of every
// balance mutation, using each side's pre-mutation balance.
//
// Concurrency: the engine serializes all access; the ledger itself is not
// locked.
package reward

import (
	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/model"
)

// Entry is one account's reward ledger entry. Accrued only increases
// between settlements and is cleared to zero on claim.
type Entry struct {
	Accrued          *uint256.Int
	LastSettledBlock uint64
}

// Ledger accrues reward for the holders of one asset token.
type Ledger struct {
	entries        map[model.Address]*Entry
	rewardPerBlock *uint256.Int
	totalSupply    *uint256.Int

	// Maturity cutoff: accrual never advances past
	// initialBlock+blockRemaining. blockRemaining == 0 disables maturity.
	initialBlock   uint64
	blockRemaining uint64
}

// NewLedger creates a reward ledger for a token deployed at initialBlock.
func NewLedger(totalSupply, rewardPerBlock *uint256.Int, initialBlock, blockRemaining uint64) *Ledger {
	return &Ledger{
		entries:        make(map[model.Address]*Entry),
		rewardPerBlock: rewardPerBlock.Clone(),
		totalSupply:    totalSupply.Clone(),
		initialBlock:   initialBlock,
		blockRemaining: blockRemaining,
	}
}

// SetRewardPerBlock replaces the accrual rate. Callers must settle any
// accounts they care about before changing the rate.
func (l *Ledger) SetRewardPerBlock(v *uint256.Int) {
	l.rewardPerBlock = v.Clone()
}

// RewardPerBlock returns the current accrual rate.
func (l *Ledger) RewardPerBlock() *uint256.Int {
	return l.rewardPerBlock.Clone()
}

// Matured reports whether the accrual window has closed.
func (l *Ledger) Matured(currentBlock uint64) bool {
	if l.blockRemaining == 0 {
		return false
	}
	return currentBlock-l.initialBlock >= l.blockRemaining
}

// effectiveBlock caps a block index at the maturity boundary.
func (l *Ledger) effectiveBlock(block uint64) uint64 {
	if l.blockRemaining == 0 {
		return block
	}
	maturity := l.initialBlock + l.blockRemaining
	if block > maturity {
		return maturity
	}
	return block
}

// entry lazily creates an account's ledger entry at the current block.
func (l *Ledger) entry(account model.Address, currentBlock uint64) *Entry {
	e, ok := l.entries[account]
	if !ok {
		e = &Entry{Accrued: uint256.NewInt(0), LastSettledBlock: l.effectiveBlock(currentBlock)}
		l.entries[account] = e
	}
	return e
}

// pending computes the not-yet-committed accrual for an entry given the
// balance held since its last settlement.
func (l *Ledger) pending(e *Entry, balance *uint256.Int, currentBlock uint64) (*uint256.Int, error) {
	capped := l.effectiveBlock(currentBlock)
	if capped <= e.LastSettledBlock || balance.IsZero() {
		return uint256.NewInt(0), nil
	}
	// balance*rewardPerBlock*blocks/totalSupply, mul before div.
	blocks := uint256.NewInt(capped - e.LastSettledBlock)
	product, overflow := new(uint256.Int).MulOverflow(balance, l.rewardPerBlock)
	if overflow {
		return nil, emath.ErrOverflow
	}
	return emath.MulDiv(product, blocks, l.totalSupply)
}

// Settle commits the accrual earned by the balance held BEFORE the
// triggering event and re-bases the entry at currentBlock. Same-block
// repeats settle a zero delta, which keeps settlement idempotent within
// one block.
func (l *Ledger) Settle(account model.Address, preBalance *uint256.Int, currentBlock uint64) error {
	e := l.entry(account, currentBlock)
	p, err := l.pending(e, preBalance, currentBlock)
	if err != nil {
		return err
	}
	e.Accrued.Add(e.Accrued, p)
	if capped := l.effectiveBlock(currentBlock); capped > e.LastSettledBlock {
		e.LastSettledBlock = capped
	}
	return nil
}

// GetReward returns the account's reward including accrual pending for the
// current block, without mutating the ledger. Reads are therefore
// consistent with a settle at the same block.
func (l *Ledger) GetReward(account model.Address, balance *uint256.Int, currentBlock uint64) (*uint256.Int, error) {
	e, ok := l.entries[account]
	if !ok {
		return uint256.NewInt(0), nil
	}
	p, err := l.pending(e, balance, currentBlock)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Add(e.Accrued, p), nil
}

// ClearReward zeroes the account's accrued reward and re-bases its
// settlement block so future accrual starts fresh.
func (l *Ledger) ClearReward(account model.Address, currentBlock uint64) {
	e := l.entry(account, currentBlock)
	e.Accrued.Clear()
	e.LastSettledBlock = l.effectiveBlock(currentBlock)
}

// Snapshot returns a copy of an account's entry for persistence. The
// second return is false when the account has never been touched.
func (l *Ledger) Snapshot(account model.Address) (Entry, bool) {
	e, ok := l.entries[account]
	if !ok {
		return Entry{}, false
	}
	return Entry{Accrued: e.Accrued.Clone(), LastSettledBlock: e.LastSettledBlock}, true
}

// Restore installs a persisted entry, overwriting any existing one.
func (l *Ledger) Restore(account model.Address, e Entry) {
	l.entries[account] = &Entry{Accrued: e.Accrued.Clone(), LastSettledBlock: e.LastSettledBlock}
}

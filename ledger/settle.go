package ledger

import (
	"fmt"
	"math/bits"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

type Payout struct {
	Recipient common.Address
	Amount    uint64
}

// Plan consumes a set of locks in full and pays their sum out to recipients.
type Plan struct {
	Consume []string
	Payouts []Payout
}

// Receipt records an applied plan so it can be undone.
type Receipt struct {
	ID       uint64
	Consumed []types.Lock
	Payouts  []Payout

	reverted bool
}

func (r *Receipt) Total() (total uint64) {
	for _, p := range r.Payouts {
		total += p.Amount
	}
	return
}

// Settle applies plan atomically: every consumed lock must exist and the
// payouts must add up to exactly the consumed amount.
func (l *Ledger) Settle(plan Plan) (receipt *Receipt, err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := l.newBatch()
	receipt = &Receipt{Payouts: append([]Payout(nil), plan.Payouts...)}
	var in, out, carry uint64
	for _, tag := range plan.Consume {
		lock, err := b.take(tag)
		if err != nil {
			return nil, err
		}
		receipt.Consumed = append(receipt.Consumed, *lock)
		if in, carry = bits.Add64(in, lock.Amount, 0); carry != 0 {
			return nil, fmt.Errorf("%w: %w: consumed locks", ErrUnbalancedSettlement, ErrBalanceOverflow)
		}
	}
	for _, p := range plan.Payouts {
		if p.Recipient == (common.Address{}) {
			return nil, fmt.Errorf("%w: empty payout recipient", ErrInvalidRecipient)
		}
		if out, carry = bits.Add64(out, p.Amount, 0); carry != 0 {
			return nil, fmt.Errorf("%w: %w: payouts", ErrUnbalancedSettlement, ErrBalanceOverflow)
		}
	}
	if in != out {
		return nil, fmt.Errorf("%w: consumed %d, paid %d", ErrUnbalancedSettlement, in, out)
	}
	for _, p := range plan.Payouts {
		if p.Amount == 0 {
			continue
		}
		if err = b.credit(p.Recipient, p.Amount); err != nil {
			return nil, err
		}
	}
	if err = l.commit(b); err != nil {
		return nil, err
	}
	l.receipts++
	receipt.ID = l.receipts
	l.logger.Info("settled", "receipt", receipt.ID, "locks", len(plan.Consume), "payouts", len(plan.Payouts), "amount", in)
	return receipt, nil
}

// Revert undoes a settlement: payouts are taken back and the consumed locks
// restored. It fails without side effects if a recipient already spent the
// funds.
func (l *Ledger) Revert(receipt *Receipt) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if receipt.reverted {
		return fmt.Errorf("%w: %d", ErrReceiptReverted, receipt.ID)
	}
	b := l.newBatch()
	for _, p := range receipt.Payouts {
		if p.Amount == 0 {
			continue
		}
		if err := b.debit(p.Recipient, p.Amount); err != nil {
			return err
		}
	}
	for i := range receipt.Consumed {
		lock := receipt.Consumed[i]
		if _, ok := b.lock(lock.Tag); ok {
			return fmt.Errorf("%w: %s", ErrLockExists, lock.Tag)
		}
		b.account(lock.Owner).Locked += lock.Amount
		delete(b.released, lock.Tag)
		b.locks[lock.Tag] = &lock
	}
	if err := l.commit(b); err != nil {
		return err
	}
	receipt.reverted = true
	l.logger.Info("settlement reverted", "receipt", receipt.ID)
	return nil
}

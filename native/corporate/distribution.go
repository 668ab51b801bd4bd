package corporate

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"capchain/core/types"
)

var (
	// ErrNotBenefit marks distributions attached to non-benefit CAs.
	ErrNotBenefit = errors.New("corporate: distribution requires a benefit CA")
	// ErrDistributionExists marks a second distribution on one CA.
	ErrDistributionExists = errors.New("corporate: distribution already attached")
	// ErrNoSuchDistribution marks claims on CAs without a distribution.
	ErrNoSuchDistribution = errors.New("corporate: no such distribution")
	// ErrNotDistributionSource marks funding portfolios of other identities.
	ErrNotDistributionSource = errors.New("corporate: funding portfolio not owned by agent")
	// ErrExpiryBeforePayment marks windows that close before they open.
	ErrExpiryBeforePayment = errors.New("corporate: expiry before payment date")
	// ErrPaymentBeforeRecordDate marks payments ahead of the record date.
	ErrPaymentBeforeRecordDate = errors.New("corporate: payment before record date")
	// ErrInsufficientDistributionFunds marks underfunded distributions.
	ErrInsufficientDistributionFunds = errors.New("corporate: insufficient distribution funds")
	// ErrNotInPaymentWindow marks claims before the payment date.
	ErrNotInPaymentWindow = errors.New("corporate: payment window not open")
	// ErrDistributionExpired marks claims after expiry.
	ErrDistributionExpired = errors.New("corporate: distribution expired")
	// ErrAlreadyClaimed marks second claims per identity.
	ErrAlreadyClaimed = errors.New("corporate: benefit already claimed")
	// ErrAlreadyReclaimed marks operations on a reclaimed distribution.
	ErrAlreadyReclaimed = errors.New("corporate: distribution already reclaimed")
	// ErrNotExpired marks reclaims while the window is still open.
	ErrNotExpired = errors.New("corporate: distribution not expired")
	// ErrDistributionStarted marks removal after the payment window opened.
	ErrDistributionStarted = errors.New("corporate: distribution already started")
)

// Distribute attaches a capital distribution to a benefit CA. The payout
// pool is locked in the agent's funding portfolio until claimed or
// reclaimed.
func (e *Engine) Distribute(
	caller types.IdentityID,
	id types.CAID,
	from types.PortfolioID,
	currency types.AssetID,
	perShare *big.Int,
	amount *big.Int,
	paymentAt uint64,
	expiresAt *uint64,
	now uint64,
) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.funds == nil {
		return errNilFunds
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return err
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchCA
	}
	if !ca.Kind.IsBenefit() {
		return ErrNotBenefit
	}
	if !ca.HasRecordDate {
		return ErrNoRecordDate
	}
	if paymentAt < ca.RecordDate.Date {
		return ErrPaymentBeforeRecordDate
	}
	if expiresAt != nil && *expiresAt <= paymentAt {
		return ErrExpiryBeforePayment
	}
	if from.DID != caller {
		return ErrNotDistributionSource
	}
	if _, exists, err := e.state.Distribution(id); err != nil {
		return err
	} else if exists {
		return ErrDistributionExists
	}

	available, err := e.funds.BalanceOf(from, currency)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return ErrInsufficientDistributionFunds
	}
	if err := e.funds.Lock(from, currency, amount); err != nil {
		return err
	}

	dist := &Distribution{
		From:      from,
		Currency:  currency,
		PerShare:  new(big.Int).Set(perShare),
		Amount:    new(big.Int).Set(amount),
		Remaining: new(big.Int).Set(amount),
		PaymentAt: paymentAt,
	}
	if expiresAt != nil {
		dist.HasExpiry = true
		dist.ExpiresAt = *expiresAt
	}
	if err := e.state.DistributionPut(id, dist); err != nil {
		return err
	}
	e.emit(newDistributionCreatedEvent(id, dist))
	return nil
}

// ClaimBenefit pays the caller's share of the distribution.
func (e *Engine) ClaimBenefit(caller types.IdentityID, id types.CAID, now uint64) (*big.Int, error) {
	return e.payBenefit(caller, id, now)
}

// PushBenefit lets the agent push a holder's share to them.
func (e *Engine) PushBenefit(caller types.IdentityID, id types.CAID, holder types.IdentityID, now uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return nil, err
	}
	return e.payBenefit(holder, id, now)
}

func (e *Engine) payBenefit(holder types.IdentityID, id types.CAID, now uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	if e.checkpoints == nil {
		return nil, errNilCheckpoints
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchCA
	}
	dist, ok, err := e.state.Distribution(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchDistribution
	}
	if dist.Reclaimed {
		return nil, ErrAlreadyReclaimed
	}
	if now < dist.PaymentAt {
		return nil, ErrNotInPaymentWindow
	}
	if dist.Expired(now) {
		return nil, ErrDistributionExpired
	}
	if !ca.Targets.Targets(holder) {
		return nil, ErrNotTargetedByCA
	}
	if claimed, err := e.state.DistributionClaimed(id, holder); err != nil {
		return nil, err
	} else if claimed {
		return nil, ErrAlreadyClaimed
	}

	cp, err := e.recordDateCheckpoint(id, ca)
	if err != nil {
		return nil, err
	}
	asset := types.TickerAsset(id.Ticker)
	balance, err := e.checkpoints.BalanceAt(asset, cp, holder)
	if err != nil {
		return nil, err
	}
	supply, err := e.checkpoints.SupplyAt(asset, cp)
	if err != nil {
		return nil, err
	}
	gross := proRata(balance, dist.PerShare, supply)
	net := afterTax(gross, ca.TaxOf(holder))
	if net.Cmp(dist.Remaining) > 0 {
		return nil, ErrInsufficientDistributionFunds
	}

	if err := e.state.DistributionClaimedPut(id, holder); err != nil {
		return nil, err
	}
	dist.Remaining = new(big.Int).Sub(dist.Remaining, net)
	if err := e.state.DistributionPut(id, dist); err != nil {
		return nil, err
	}
	if net.Sign() > 0 {
		if err := e.funds.Unlock(dist.From, dist.Currency, net); err != nil {
			return nil, err
		}
		if err := e.funds.Transfer(dist.From, types.DefaultPortfolio(holder), dist.Currency, net); err != nil {
			return nil, err
		}
	}
	e.emit(newBenefitClaimedEvent(id, holder, net))
	return net, nil
}

// Reclaim releases the unclaimed remainder back to the agent after expiry.
func (e *Engine) Reclaim(caller types.IdentityID, id types.CAID, now uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return nil, err
	}
	dist, ok, err := e.state.Distribution(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchDistribution
	}
	if dist.Reclaimed {
		return nil, ErrAlreadyReclaimed
	}
	if !dist.Expired(now) {
		return nil, ErrNotExpired
	}
	remainder := new(big.Int).Set(dist.Remaining)
	if remainder.Sign() > 0 {
		if err := e.funds.Unlock(dist.From, dist.Currency, remainder); err != nil {
			return nil, err
		}
	}
	dist.Reclaimed = true
	dist.Remaining = big.NewInt(0)
	if err := e.state.DistributionPut(id, dist); err != nil {
		return nil, err
	}
	e.emit(newDistributionReclaimedEvent(id, remainder))
	return remainder, nil
}

// DistributionOf returns one stored distribution.
func (e *Engine) DistributionOf(id types.CAID) (*Distribution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	dist, ok, err := e.state.Distribution(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchDistribution
	}
	return dist, nil
}

// removeDistribution tears down an unstarted distribution as part of
// RemoveCA, releasing the locked pool.
func (e *Engine) removeDistribution(id types.CAID, now uint64) error {
	dist, ok, err := e.state.Distribution(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if now >= dist.PaymentAt && !dist.Reclaimed {
		return ErrDistributionStarted
	}
	if !dist.Reclaimed && dist.Remaining.Sign() > 0 {
		if err := e.funds.Unlock(dist.From, dist.Currency, dist.Remaining); err != nil {
			return err
		}
	}
	return e.state.DistributionDelete(id)
}

// proRata computes balance / supply of the pool with 256-bit
// multiply-then-divide, rounding down.
func proRata(balance, pool, supply *big.Int) *big.Int {
	if supply == nil || supply.Sign() == 0 || balance == nil || balance.Sign() == 0 {
		return big.NewInt(0)
	}
	b, overflow := uint256.FromBig(balance)
	if overflow {
		return big.NewInt(0)
	}
	p, overflow := uint256.FromBig(pool)
	if overflow {
		return big.NewInt(0)
	}
	s, overflow := uint256.FromBig(supply)
	if overflow {
		return big.NewInt(0)
	}
	out := new(uint256.Int).Mul(b, p)
	out.Div(out, s)
	return out.ToBig()
}

// afterTax deducts the withholding fraction, rounding the cut down.
func afterTax(gross *big.Int, tax Tax) *big.Int {
	if gross.Sign() == 0 || tax == 0 {
		return new(big.Int).Set(gross)
	}
	cut := new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(tax)))
	cut.Div(cut, new(big.Int).SetUint64(uint64(TaxMax)))
	return new(big.Int).Sub(gross, cut)
}

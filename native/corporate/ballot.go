package corporate

import (
	"errors"
	"math/big"

	"capchain/core/types"
)

var (
	// ErrNotIssuerNotice marks ballots attached to non-notice CAs.
	ErrNotIssuerNotice = errors.New("corporate: ballot requires an issuer notice")
	// ErrBallotExists marks a second ballot on one CA.
	ErrBallotExists = errors.New("corporate: ballot already attached")
	// ErrNoSuchBallot marks votes on CAs without a ballot.
	ErrNoSuchBallot = errors.New("corporate: no such ballot")
	// ErrBallotWindowInvalid marks inverted or empty vote windows.
	ErrBallotWindowInvalid = errors.New("corporate: invalid ballot window")
	// ErrBallotNoChoices marks ballots without any motion choices.
	ErrBallotNoChoices = errors.New("corporate: ballot has no choices")
	// ErrVoteOutsideWindow marks votes before start or after end.
	ErrVoteOutsideWindow = errors.New("corporate: vote outside window")
	// ErrVotesCountMismatch marks vote vectors of the wrong length.
	ErrVotesCountMismatch = errors.New("corporate: vote count mismatch")
	// ErrNotTargetedByCA marks holders outside the CA's target set.
	ErrNotTargetedByCA = errors.New("corporate: identity not targeted")
	// ErrAlreadyVoted marks double votes without a prior withdrawal.
	ErrAlreadyVoted = errors.New("corporate: already voted")
	// ErrNoVote marks withdrawals without a cast vote.
	ErrNoVote = errors.New("corporate: no vote to withdraw")
	// ErrInsufficientVotingPower marks motions weighted above the voter's
	// record-date balance.
	ErrInsufficientVotingPower = errors.New("corporate: insufficient voting power")
)

// AttachBallot binds a ballot to an issuer-notice CA. The record date must
// resolve before voting starts.
func (e *Engine) AttachBallot(caller types.IdentityID, id types.CAID, start, end uint64, meta BallotMeta, rcv bool) error {
	if e == nil || e.state == nil {
		return errNilState
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
	if ca.Kind != KindIssuerNotice {
		return ErrNotIssuerNotice
	}
	if !ca.HasRecordDate {
		return ErrNoRecordDate
	}
	if ca.RecordDate.Date > start {
		return ErrRecordDateAfterStart
	}
	if end < start {
		return ErrBallotWindowInvalid
	}
	if meta.ChoiceCount() == 0 {
		return ErrBallotNoChoices
	}
	if _, exists, err := e.state.Ballot(id); err != nil {
		return err
	} else if exists {
		return ErrBallotExists
	}
	ballot := &Ballot{Start: start, End: end, Meta: meta.Clone(), RCV: rcv}
	if err := e.state.BallotPut(id, ballot); err != nil {
		return err
	}
	results := make([]*big.Int, meta.ChoiceCount())
	for i := range results {
		results[i] = big.NewInt(0)
	}
	if err := e.state.BallotResultsPut(id, results); err != nil {
		return err
	}
	e.emit(newBallotAttachedEvent(id, ballot))
	return nil
}

// Vote casts the caller's flattened choice weights. Weight per motion is
// bounded by the caller's record-date balance; a second vote without a prior
// withdrawal is rejected.
func (e *Engine) Vote(caller types.IdentityID, id types.CAID, powers []*big.Int, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.checkpoints == nil {
		return errNilCheckpoints
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchCA
	}
	ballot, ok, err := e.state.Ballot(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchBallot
	}
	if now < ballot.Start || now > ballot.End {
		return ErrVoteOutsideWindow
	}
	if !ca.Targets.Targets(caller) {
		return ErrNotTargetedByCA
	}
	if len(powers) != ballot.Meta.ChoiceCount() {
		return ErrVotesCountMismatch
	}
	if _, voted, err := e.state.BallotVote(id, caller); err != nil {
		return err
	} else if voted {
		return ErrAlreadyVoted
	}

	cp, err := e.recordDateCheckpoint(id, ca)
	if err != nil {
		return err
	}
	weight, err := e.checkpoints.BalanceAt(types.TickerAsset(id.Ticker), cp, caller)
	if err != nil {
		return err
	}
	offset := 0
	for _, motion := range ballot.Meta.Motions {
		total := big.NewInt(0)
		for i := 0; i < len(motion.Choices); i++ {
			power := powers[offset+i]
			if power == nil || power.Sign() < 0 {
				return ErrVotesCountMismatch
			}
			total.Add(total, power)
		}
		if total.Cmp(weight) > 0 {
			return ErrInsufficientVotingPower
		}
		offset += len(motion.Choices)
	}

	results, err := e.state.BallotResults(id)
	if err != nil {
		return err
	}
	for i, power := range powers {
		results[i] = new(big.Int).Add(results[i], power)
	}
	if err := e.state.BallotResultsPut(id, results); err != nil {
		return err
	}
	vote := &BallotVote{Powers: powers}
	if err := e.state.BallotVotePut(id, caller, vote.Clone()); err != nil {
		return err
	}
	e.emit(newVoteCastEvent(id, caller))
	return nil
}

// WithdrawVote removes the caller's vote while the window is still open,
// allowing a replacement vote.
func (e *Engine) WithdrawVote(caller types.IdentityID, id types.CAID, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ballot, ok, err := e.state.Ballot(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchBallot
	}
	if now > ballot.End {
		return ErrVoteOutsideWindow
	}
	vote, ok, err := e.state.BallotVote(id, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoVote
	}
	results, err := e.state.BallotResults(id)
	if err != nil {
		return err
	}
	for i, power := range vote.Powers {
		if i < len(results) && power != nil {
			results[i] = new(big.Int).Sub(results[i], power)
		}
	}
	if err := e.state.BallotResultsPut(id, results); err != nil {
		return err
	}
	if err := e.state.BallotVoteDelete(id, caller); err != nil {
		return err
	}
	e.emit(newVoteWithdrawnEvent(id, caller))
	return nil
}

// BallotResultsOf returns the accumulated choice weights.
func (e *Engine) BallotResultsOf(id types.CAID) ([]*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.Ballot(id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNoSuchBallot
	}
	return e.state.BallotResults(id)
}

// removeBallot tears down the ballot and its results as part of RemoveCA.
func (e *Engine) removeBallot(id types.CAID, now uint64) error {
	if err := e.state.BallotResultsDelete(id); err != nil {
		return err
	}
	return e.state.BallotDelete(id)
}

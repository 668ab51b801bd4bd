package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"capchain/core/types"
	"capchain/crypto"
	"capchain/native/settlement"
)

type statusResult struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}

func (s *Server) getStatus(params []json.RawMessage) (interface{}, *RPCError) {
	if len(params) != 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "expected no params"}
	}
	root := s.ledger.State().Root()
	return statusResult{
		Height: s.ledger.Height(),
		Root:   "0x" + hex.EncodeToString(root[:]),
	}, nil
}

type resolveIdentityParams struct {
	Address string `json:"address"`
}

type resolveIdentityResult struct {
	DID       string `json:"did"`
	IsPrimary bool   `json:"isPrimary"`
}

func (s *Server) resolveIdentity(params []json.RawMessage) (interface{}, *RPCError) {
	var p resolveIdentityParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := parseAccountKey(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, ok, err := s.ledger.State().Identity().KeyRecordGet(key)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: "key is not linked to any identity"}
	}
	return resolveIdentityResult{DID: rec.DID.String(), IsPrimary: rec.IsPrimary}, nil
}

type bankBalanceParams struct {
	DID string `json:"did"`
}

type bankBalanceResult struct {
	Balance  string `json:"balance"`
	Reserved string `json:"reserved"`
}

func (s *Server) getBankBalance(params []json.RawMessage) (interface{}, *RPCError) {
	var p bankBalanceParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	did, rpcErr := parseDID(p.DID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bank := s.ledger.State().Bank()
	free, err := bank.Balance(did)
	if err != nil {
		return nil, serverError(err)
	}
	reserved, err := bank.Reserved(did)
	if err != nil {
		return nil, serverError(err)
	}
	return bankBalanceResult{Balance: free.String(), Reserved: reserved.String()}, nil
}

type portfolioBalanceParams struct {
	DID    string `json:"did"`
	Number uint64 `json:"number"`
	Ticker string `json:"ticker"`
}

type portfolioBalanceResult struct {
	Portfolio string `json:"portfolio"`
	Balance   string `json:"balance"`
	Locked    string `json:"locked"`
	Total     string `json:"identityTotal"`
}

func (s *Server) getPortfolioBalance(params []json.RawMessage) (interface{}, *RPCError) {
	var p portfolioBalanceParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	did, rpcErr := parseDID(p.DID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAsset(p.Ticker)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pid := types.DefaultPortfolio(did)
	if p.Number != 0 {
		pid = types.UserPortfolio(did, p.Number)
	}
	portfolios := s.ledger.State().Portfolio()
	balance, err := portfolios.PortfolioBalance(pid, asset)
	if err != nil {
		return nil, serverError(err)
	}
	locked, err := portfolios.PortfolioLocked(pid, asset)
	if err != nil {
		return nil, serverError(err)
	}
	total, err := portfolios.IdentityAssetBalance(did, asset)
	if err != nil {
		return nil, serverError(err)
	}
	return portfolioBalanceResult{
		Portfolio: pid.String(),
		Balance:   balance.String(),
		Locked:    locked.String(),
		Total:     total.String(),
	}, nil
}

type instructionParams struct {
	ID uint64 `json:"id"`
}

type instructionLeg struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Ticker   string `json:"ticker"`
	Amount   string `json:"amount"`
	Status   string `json:"status"`
}

type instructionResult struct {
	ID             uint64           `json:"id"`
	Venue          uint64           `json:"venue"`
	Status         string           `json:"status"`
	SettleBlock    uint64           `json:"settleBlock,omitempty"`
	Memo           string           `json:"memo,omitempty"`
	AffirmsPending uint64           `json:"affirmsPending"`
	Legs           []instructionLeg `json:"legs,omitempty"`
}

func (s *Server) getInstruction(params []json.RawMessage) (interface{}, *RPCError) {
	var p instructionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	store := s.ledger.State().Settlement()
	instruction, ok, err := store.Instruction(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		// Executed instructions are pruned, so absence also covers them.
		return instructionResult{ID: p.ID, Status: settlement.StatusUnknown.String()}, nil
	}
	legs, err := store.Legs(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	statuses, err := store.LegStatuses(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	pending, err := store.AffirmsPending(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	result := instructionResult{
		ID:             instruction.ID,
		Venue:          instruction.Venue,
		Status:         instruction.Status.String(),
		SettleBlock:    instruction.SettleBlock,
		Memo:           instruction.Memo,
		AffirmsPending: pending,
		Legs:           make([]instructionLeg, 0, len(legs)),
	}
	for i, leg := range legs {
		entry := instructionLeg{
			Sender:   leg.From.String(),
			Receiver: leg.To.String(),
			Ticker:   leg.Asset.String(),
			Amount:   leg.Amount.String(),
		}
		if i < len(statuses) {
			entry.Status = legStatusName(statuses[i])
		}
		result.Legs = append(result.Legs, entry)
	}
	return result, nil
}

func legStatusName(status settlement.LegStatus) string {
	switch status {
	case settlement.LegPendingLock:
		return "pending_lock"
	case settlement.LegExecutionPending:
		return "execution_pending"
	case settlement.LegExecutionToBeSkipped:
		return "execution_skipped"
	default:
		return "unknown"
	}
}

type corporateActionParams struct {
	Ticker string `json:"ticker"`
	Local  uint32 `json:"local"`
}

func (s *Server) getCorporateAction(params []json.RawMessage) (interface{}, *RPCError) {
	var p corporateActionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	ticker, err := types.NewTicker(p.Ticker)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	id := types.CAID{Ticker: ticker, Local: p.Local}
	ca, ok, err := s.ledger.State().Corporate().CA(id)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: fmt.Sprintf("corporate action %s not found", id)}
	}
	return ca, nil
}

type mipParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) getMip(params []json.RawMessage) (interface{}, *RPCError) {
	var p mipParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	mip, ok, err := s.ledger.State().Governance().Mip(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: fmt.Sprintf("mip %d not found", p.ID)}
	}
	return mip, nil
}

func (s *Server) getReferendum(params []json.RawMessage) (interface{}, *RPCError) {
	var p mipParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	referendum, ok, err := s.ledger.State().Governance().Referendum(p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: fmt.Sprintf("referendum %d not found", p.ID)}
	}
	return referendum, nil
}

type multisigProposalParams struct {
	Account string `json:"account"`
	ID      uint64 `json:"id"`
}

func (s *Server) getMultisigProposal(params []json.RawMessage) (interface{}, *RPCError) {
	var p multisigProposalParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseMultisigKey(p.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	proposal, ok, err := s.ledger.State().Multisig().Proposal(account, p.ID)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: fmt.Sprintf("proposal %d not found", p.ID)}
	}
	return proposal, nil
}

func parseDID(s string) (types.IdentityID, *RPCError) {
	var did types.IdentityID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != len(did) {
		return did, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("did must be %d hex bytes", len(did))}
	}
	copy(did[:], raw)
	return did, nil
}

func parseAsset(ticker string) (types.AssetID, *RPCError) {
	t, err := types.NewTicker(ticker)
	if err != nil {
		return types.AssetID{}, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	return types.TickerAsset(t), nil
}

func parseAccountKey(addr string) (types.AccountKey, *RPCError) {
	return parseAddress(addr, crypto.AccountPrefix)
}

func parseMultisigKey(addr string) (types.AccountKey, *RPCError) {
	return parseAddress(addr, crypto.MultisigPrefix)
}

func parseAddress(addr string, want crypto.AddressPrefix) (types.AccountKey, *RPCError) {
	var key types.AccountKey
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return key, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	if decoded.Prefix() != want {
		return key, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("address must carry the %q prefix", want)}
	}
	raw := decoded.Bytes()
	if len(raw) != len(key) {
		return key, &RPCError{Code: codeInvalidParams, Message: "address payload has wrong length"}
	}
	copy(key[:], raw)
	return key, nil
}

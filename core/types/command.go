package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// CommandKind enumerates the dispatchable calls that multi-sig proposals and
// governance referendums may carry. Calls are serialised into state; the
// runtime dispatches them through a single match so no host function pointers
// ever live in storage.
type CommandKind uint8

const (
	// CommandNoop does nothing and always succeeds. Useful for proposals
	// whose only effect is the recorded decision.
	CommandNoop CommandKind = iota
	// CommandParamUpdate sets a runtime parameter in the param store.
	CommandParamUpdate
	// CommandTreasuryTransfer moves native balance from the treasury to an
	// identity.
	CommandTreasuryTransfer
	// CommandChangeSigsRequired changes a multi-sig's signature threshold.
	CommandChangeSigsRequired
	// CommandAddMultisigSigner invites a signer to a multi-sig.
	CommandAddMultisigSigner
	// CommandRemoveMultisigSigner removes a signer from a multi-sig.
	CommandRemoveMultisigSigner
)

// Command is a serialised dispatchable call. Payload is the RLP encoding of
// the kind-specific argument struct.
type Command struct {
	Kind    CommandKind
	Payload []byte
}

// ParamUpdateArgs sets one parameter key to a raw value.
type ParamUpdateArgs struct {
	Key   string
	Value []byte
}

// TreasuryTransferArgs moves Amount of native balance from the treasury to
// the target identity.
type TreasuryTransferArgs struct {
	To     IdentityID
	Amount *big.Int
}

// MultisigSignerArgs identifies a multi-sig account and one signer key.
type MultisigSignerArgs struct {
	Multisig AccountKey
	Signer   AccountKey
}

// SigsRequiredArgs changes the signature threshold of a multi-sig account.
type SigsRequiredArgs struct {
	Multisig AccountKey
	Required uint64
}

// NewCommand serialises the given argument struct into a Command.
func NewCommand(kind CommandKind, args interface{}) (Command, error) {
	if args == nil {
		return Command{Kind: kind}, nil
	}
	payload, err := rlp.EncodeToBytes(args)
	if err != nil {
		return Command{}, fmt.Errorf("command: encode args: %w", err)
	}
	return Command{Kind: kind, Payload: payload}, nil
}

// DecodeArgs deserialises the payload into the given argument struct pointer.
func (c Command) DecodeArgs(into interface{}) error {
	if err := rlp.DecodeBytes(c.Payload, into); err != nil {
		return fmt.Errorf("command: decode args: %w", err)
	}
	return nil
}

func (k CommandKind) String() string {
	switch k {
	case CommandNoop:
		return "noop"
	case CommandParamUpdate:
		return "param.update"
	case CommandTreasuryTransfer:
		return "treasury.transfer"
	case CommandChangeSigsRequired:
		return "multisig.change_sigs_required"
	case CommandAddMultisigSigner:
		return "multisig.add_signer"
	case CommandRemoveMultisigSigner:
		return "multisig.remove_signer"
	default:
		return "unknown"
	}
}

package core

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"capchain/core/types"
	"capchain/crypto"
)

// ErrGenesisNotEmpty is returned when genesis is applied to a store that
// already carries state.
var ErrGenesisNotEmpty = errors.New("genesis: store already initialized")

// Genesis describes the initial ledger state. Amounts are decimal strings so
// documents survive round-trips through YAML without precision loss.
type Genesis struct {
	ChainID      string            `yaml:"chainId"`
	Committee    []string          `yaml:"committee"`
	CDDProviders []string          `yaml:"cddProviders"`
	Identities   []GenesisIdentity `yaml:"identities"`
	Assets       []GenesisAsset    `yaml:"assets"`
	Treasury     string            `yaml:"treasury,omitempty"`
}

// GenesisIdentity seeds one identity with a primary key and a native balance.
type GenesisIdentity struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance,omitempty"`
}

// GenesisAsset registers an asset and mints its supply into the owner's
// default portfolio.
type GenesisAsset struct {
	Ticker string `yaml:"ticker"`
	Owner  string `yaml:"owner"`
	Supply string `yaml:"supply"`
}

// LoadGenesis reads and decodes a genesis document from disk.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var doc Genesis
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	return &doc, nil
}

func parseGenesisAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("genesis: %s: invalid amount %q", field, raw)
	}
	return amount, nil
}

func parseGenesisAccount(field, addr string) (types.AccountKey, error) {
	var key types.AccountKey
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
	if err != nil {
		return key, fmt.Errorf("genesis: %s: %w", field, err)
	}
	if decoded.Prefix() != crypto.AccountPrefix {
		return key, fmt.Errorf("genesis: %s: unsupported prefix %q", field, decoded.Prefix())
	}
	copy(key[:], decoded.Bytes())
	return key, nil
}

// ApplyGenesis seeds an empty ledger from the document and flushes block zero.
// Identities are created in document order so allocated DIDs are deterministic.
func (l *Ledger) ApplyGenesis(doc *Genesis) ([32]byte, error) {
	if doc == nil {
		return [32]byte{}, fmt.Errorf("genesis: document must not be nil")
	}
	if l.state.Height() != 0 || l.state.Root() != [32]byte{} {
		return [32]byte{}, ErrGenesisNotEmpty
	}

	bank := l.state.Bank()
	dids := make(map[string]types.IdentityID, len(doc.Identities))
	for i, entry := range doc.Identities {
		field := fmt.Sprintf("identities[%d]", i)
		key, err := parseGenesisAccount(field, entry.Address)
		if err != nil {
			return [32]byte{}, err
		}
		if _, seen := dids[entry.Address]; seen {
			return [32]byte{}, fmt.Errorf("genesis: %s: duplicate address %s", field, entry.Address)
		}
		did, err := l.identity.CreateIdentity(key)
		if err != nil {
			return [32]byte{}, fmt.Errorf("genesis: %s: %w", field, err)
		}
		balance, err := parseGenesisAmount(field, entry.Balance)
		if err != nil {
			return [32]byte{}, err
		}
		if balance.Sign() > 0 {
			if err := bank.BalancePut(did, balance); err != nil {
				return [32]byte{}, fmt.Errorf("genesis: %s: %w", field, err)
			}
		}
		dids[entry.Address] = did
	}

	for i, addr := range doc.CDDProviders {
		did, ok := dids[addr]
		if !ok {
			return [32]byte{}, fmt.Errorf("genesis: cddProviders[%d]: unknown address %s", i, addr)
		}
		if err := l.identity.SetCDDProvider(did, true); err != nil {
			return [32]byte{}, fmt.Errorf("genesis: cddProviders[%d]: %w", i, err)
		}
	}

	gov := l.state.Governance()
	for i, addr := range doc.Committee {
		did, ok := dids[addr]
		if !ok {
			return [32]byte{}, fmt.Errorf("genesis: committee[%d]: unknown address %s", i, addr)
		}
		if err := gov.CommitteeMemberSet(did, true); err != nil {
			return [32]byte{}, fmt.Errorf("genesis: committee[%d]: %w", i, err)
		}
	}

	// Assets sorted by ticker so the genesis root never depends on document
	// order of the asset list.
	assets := append([]GenesisAsset(nil), doc.Assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Ticker < assets[j].Ticker })
	for i, entry := range assets {
		field := fmt.Sprintf("assets[%q]", entry.Ticker)
		ticker, err := types.NewTicker(strings.TrimSpace(entry.Ticker))
		if err != nil {
			return [32]byte{}, fmt.Errorf("genesis: assets[%d]: %w", i, err)
		}
		owner, ok := dids[entry.Owner]
		if !ok {
			return [32]byte{}, fmt.Errorf("genesis: %s: unknown owner %s", field, entry.Owner)
		}
		asset := types.TickerAsset(ticker)
		if _, exists, err := l.state.AssetOwner(asset); err != nil {
			return [32]byte{}, fmt.Errorf("genesis: %s: %w", field, err)
		} else if exists {
			return [32]byte{}, fmt.Errorf("genesis: %s: duplicate ticker", field)
		}
		if err := l.state.AssetOwnerSet(asset, owner); err != nil {
			return [32]byte{}, fmt.Errorf("genesis: %s: %w", field, err)
		}
		supply, err := parseGenesisAmount(field, entry.Supply)
		if err != nil {
			return [32]byte{}, err
		}
		if supply.Sign() > 0 {
			if err := l.portfolio.Mint(types.DefaultPortfolio(owner), asset, supply); err != nil {
				return [32]byte{}, fmt.Errorf("genesis: %s: %w", field, err)
			}
		}
	}

	if doc.Treasury != "" {
		amount, err := parseGenesisAmount("treasury", doc.Treasury)
		if err != nil {
			return [32]byte{}, err
		}
		if amount.Sign() > 0 {
			if err := bank.TreasuryDeposit(amount); err != nil {
				return [32]byte{}, fmt.Errorf("genesis: treasury: %w", err)
			}
		}
	}

	// Genesis bookkeeping is not observable block activity.
	l.recorder.Discard()

	root, err := l.state.Flush(0)
	if err != nil {
		return [32]byte{}, fmt.Errorf("genesis: flush: %w", err)
	}
	return root, nil
}

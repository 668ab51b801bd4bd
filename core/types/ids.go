package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IdentityID is the opaque 256-bit handle of an on-chain identity (DID).
// Every actor that can hold balances or sign commands is represented by one.
type IdentityID [32]byte

// IsZero reports whether the identity handle is unset.
func (id IdentityID) IsZero() bool { return id == IdentityID{} }

// String renders the DID as 0x-prefixed hex for logs and events.
func (id IdentityID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// Bytes returns a copy of the raw handle.
func (id IdentityID) Bytes() []byte { return append([]byte(nil), id[:]...) }

// AccountKey is the 20-byte account derived from a signing key. The identity
// module maps each key to at most one identity.
type AccountKey [20]byte

// IsZero reports whether the key is unset.
func (k AccountKey) IsZero() bool { return k == AccountKey{} }

// String renders the key as 0x-prefixed hex.
func (k AccountKey) String() string { return "0x" + hex.EncodeToString(k[:]) }

// Bytes returns a copy of the raw key.
func (k AccountKey) Bytes() []byte { return append([]byte(nil), k[:]...) }

// TickerLen is the fixed width of an asset ticker. Shorter names are
// right-padded with zero bytes.
const TickerLen = 12

// Ticker is a short fixed-length asset name, globally unique.
type Ticker [TickerLen]byte

// NewTicker builds a ticker from a string, rejecting names that do not fit.
func NewTicker(s string) (Ticker, error) {
	var t Ticker
	if len(s) == 0 || len(s) > TickerLen {
		return t, fmt.Errorf("ticker %q must be 1..%d bytes", s, TickerLen)
	}
	copy(t[:], s)
	return t, nil
}

// MustTicker is NewTicker for literals known to be valid. Test helper.
func MustTicker(s string) Ticker {
	t, err := NewTicker(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String trims the zero padding.
func (t Ticker) String() string {
	return strings.TrimRight(string(t[:]), "\x00")
}

// IsZero reports whether the ticker is unset.
func (t Ticker) IsZero() bool { return t == Ticker{} }

// AssetIDKind discriminates the two asset naming schemes.
type AssetIDKind uint8

const (
	// AssetIDTicker addresses an asset by its registered ticker.
	AssetIDTicker AssetIDKind = iota
	// AssetIDOpaque addresses an asset by a 128-bit opaque handle.
	AssetIDOpaque
)

// AssetID names an asset either by ticker or by an opaque 128-bit handle.
// The compliance engine treats both uniformly as a scope.
type AssetID struct {
	Kind   AssetIDKind
	Ticker Ticker
	Handle [16]byte
}

// TickerAsset wraps a ticker into an AssetID.
func TickerAsset(t Ticker) AssetID {
	return AssetID{Kind: AssetIDTicker, Ticker: t}
}

// OpaqueAsset wraps a 128-bit handle into an AssetID.
func OpaqueAsset(h [16]byte) AssetID {
	return AssetID{Kind: AssetIDOpaque, Handle: h}
}

// NewOpaqueAsset allocates a fresh random 128-bit asset handle.
func NewOpaqueAsset() AssetID {
	return OpaqueAsset(uuid.New())
}

// IsZero reports whether the asset id is unset.
func (a AssetID) IsZero() bool { return a == AssetID{} }

// ScopeBytes returns the canonical byte representation used for storage key
// derivation. Ticker and opaque handles never collide thanks to the kind tag.
func (a AssetID) ScopeBytes() []byte {
	buf := make([]byte, 1+TickerLen+16)
	buf[0] = byte(a.Kind)
	copy(buf[1:], a.Ticker[:])
	copy(buf[1+TickerLen:], a.Handle[:])
	return buf
}

func (a AssetID) String() string {
	if a.Kind == AssetIDTicker {
		return a.Ticker.String()
	}
	return uuid.UUID(a.Handle).String()
}

// PortfolioKind discriminates the default portfolio from user-numbered ones.
type PortfolioKind uint8

const (
	// PortfolioDefault is the implicit portfolio every identity owns.
	PortfolioDefault PortfolioKind = iota
	// PortfolioUser is an explicitly created, numbered portfolio.
	PortfolioUser
)

// PortfolioID addresses one sub-account of an identity.
type PortfolioID struct {
	DID    IdentityID
	Kind   PortfolioKind
	Number uint64
}

// DefaultPortfolio returns the identity's default portfolio id.
func DefaultPortfolio(did IdentityID) PortfolioID {
	return PortfolioID{DID: did, Kind: PortfolioDefault}
}

// UserPortfolio returns a numbered user portfolio id.
func UserPortfolio(did IdentityID, number uint64) PortfolioID {
	return PortfolioID{DID: did, Kind: PortfolioUser, Number: number}
}

// Bytes returns the canonical byte representation used for key derivation.
func (p PortfolioID) Bytes() []byte {
	buf := make([]byte, 32+1+8)
	copy(buf, p.DID[:])
	buf[32] = byte(p.Kind)
	binary.BigEndian.PutUint64(buf[33:], p.Number)
	return buf
}

func (p PortfolioID) String() string {
	if p.Kind == PortfolioDefault {
		return fmt.Sprintf("%s/default", p.DID)
	}
	return fmt.Sprintf("%s/%d", p.DID, p.Number)
}

// CAID addresses one corporate action of a ticker.
type CAID struct {
	Ticker Ticker
	Local  uint32
}

// Bytes returns the canonical byte representation used for key derivation.
func (c CAID) Bytes() []byte {
	buf := make([]byte, TickerLen+4)
	copy(buf, c.Ticker[:])
	binary.BigEndian.PutUint32(buf[TickerLen:], c.Local)
	return buf
}

func (c CAID) String() string {
	return fmt.Sprintf("%s#%d", c.Ticker, c.Local)
}

// SignatoryKind discriminates identity- and key-addressed signatories.
type SignatoryKind uint8

const (
	// SignatoryIdentity targets an identity.
	SignatoryIdentity SignatoryKind = iota
	// SignatoryAccount targets a raw account key.
	SignatoryAccount
)

// Signatory addresses either an identity or a bare account key. Authorizations
// are issued to signatories so that keys not yet linked to any identity can be
// invited to join one.
type Signatory struct {
	Kind SignatoryKind
	DID  IdentityID
	Key  AccountKey
}

// IdentitySignatory targets a DID.
func IdentitySignatory(did IdentityID) Signatory {
	return Signatory{Kind: SignatoryIdentity, DID: did}
}

// AccountSignatory targets a raw key.
func AccountSignatory(key AccountKey) Signatory {
	return Signatory{Kind: SignatoryAccount, Key: key}
}

func (s Signatory) String() string {
	if s.Kind == SignatoryIdentity {
		return s.DID.String()
	}
	return s.Key.String()
}

// Matches reports whether the signatory addresses the given identity or key.
func (s Signatory) Matches(did IdentityID, key AccountKey) bool {
	switch s.Kind {
	case SignatoryIdentity:
		return s.DID == did
	case SignatoryAccount:
		return s.Key == key
	default:
		return false
	}
}

// CompareBytes orders two byte slices; used to keep persisted sets sorted so
// lookups stay O(log n) and encodings deterministic.
func CompareBytes(a, b []byte) int { return bytes.Compare(a, b) }

package types

// SubsetKind discriminates the three subset shapes used in permission sets.
type SubsetKind uint8

const (
	// SubsetWhole grants everything.
	SubsetWhole SubsetKind = iota
	// SubsetThese grants exactly the listed elements.
	SubsetThese
	// SubsetExcept grants everything but the listed elements.
	SubsetExcept
)

// Subset is one of Whole | These(S) | Except(S). The zero value is Whole.
type Subset[T comparable] struct {
	Kind  SubsetKind
	Elems []T
}

// WholeSubset grants everything.
func WholeSubset[T comparable]() Subset[T] {
	return Subset[T]{Kind: SubsetWhole}
}

// TheseSubset grants exactly the given elements.
func TheseSubset[T comparable](elems ...T) Subset[T] {
	return Subset[T]{Kind: SubsetThese, Elems: elems}
}

// ExceptSubset grants everything but the given elements.
func ExceptSubset[T comparable](elems ...T) Subset[T] {
	return Subset[T]{Kind: SubsetExcept, Elems: elems}
}

func (s Subset[T]) has(v T) bool {
	for _, e := range s.Elems {
		if e == v {
			return true
		}
	}
	return false
}

// Contains reports whether the subset grants the single element v.
func (s Subset[T]) Contains(v T) bool {
	switch s.Kind {
	case SubsetWhole:
		return true
	case SubsetThese:
		return s.has(v)
	case SubsetExcept:
		return !s.has(v)
	default:
		return false
	}
}

// Covers reports whether every right granted by o is also granted by s
// (s ≥ o in the permission partial order). Work is bounded by the product of
// the two element lists, which are themselves bounded at the storage boundary.
func (s Subset[T]) Covers(o Subset[T]) bool {
	switch s.Kind {
	case SubsetWhole:
		return true
	case SubsetThese:
		switch o.Kind {
		case SubsetThese:
			for _, e := range o.Elems {
				if !s.has(e) {
					return false
				}
			}
			return true
		default:
			// These(A) can never cover Whole or Except(_): both grant
			// unboundedly many elements.
			return false
		}
	case SubsetExcept:
		switch o.Kind {
		case SubsetThese:
			// Except(A) ≥ These(B) iff A ∩ B = ∅.
			for _, e := range o.Elems {
				if s.has(e) {
					return false
				}
			}
			return true
		case SubsetExcept:
			// Except(A) ≥ Except(B) iff A ⊆ B.
			for _, e := range s.Elems {
				if !o.has(e) {
					return false
				}
			}
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// PalletExtrinsic names one dispatchable operation for permission purposes.
type PalletExtrinsic struct {
	Pallet    string
	Extrinsic string
}

// Permissions describes what a secondary key may touch: which assets, which
// operations, which portfolios.
type Permissions struct {
	Assets     Subset[AssetID]
	Extrinsics Subset[PalletExtrinsic]
	Portfolios Subset[PortfolioID]
}

// WholePermissions grants everything; the implicit permission set of a
// primary key.
func WholePermissions() Permissions {
	return Permissions{
		Assets:     WholeSubset[AssetID](),
		Extrinsics: WholeSubset[PalletExtrinsic](),
		Portfolios: WholeSubset[PortfolioID](),
	}
}

// Covers reports whether p grants at least every right granted by o.
func (p Permissions) Covers(o Permissions) bool {
	return p.Assets.Covers(o.Assets) &&
		p.Extrinsics.Covers(o.Extrinsics) &&
		p.Portfolios.Covers(o.Portfolios)
}

// AllowsCall reports whether the permission set grants the named operation.
func (p Permissions) AllowsCall(pallet, extrinsic string) bool {
	return p.Extrinsics.Contains(PalletExtrinsic{Pallet: pallet, Extrinsic: extrinsic})
}

// AllowsPortfolio reports whether the permission set grants the portfolio.
func (p Permissions) AllowsPortfolio(id PortfolioID) bool {
	return p.Portfolios.Contains(id)
}

// AllowsAsset reports whether the permission set grants the asset.
func (p Permissions) AllowsAsset(id AssetID) bool {
	return p.Assets.Contains(id)
}

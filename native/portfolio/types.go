package portfolio

import (
	"math/big"

	"capchain/core/types"
)

// Fund describes one item of a portfolio move: either a fungible amount or a
// set of NFTs of the asset.
type Fund struct {
	Asset  types.AssetID
	Amount *big.Int
	NFTs   []uint64
}

// Clone returns a deep copy of the fund descriptor.
func (f Fund) Clone() Fund {
	clone := Fund{Asset: f.Asset, NFTs: append([]uint64(nil), f.NFTs...)}
	if f.Amount != nil {
		clone.Amount = new(big.Int).Set(f.Amount)
	}
	return clone
}

// containsID reports whether the sorted id slice holds id.
func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// removeID removes id from the slice, preserving order.
func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

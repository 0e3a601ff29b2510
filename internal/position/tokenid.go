// Package position defines the external position-token collaborator: a
// fungible balance ledger keyed by an opaque 256-bit token id derived from
// (marketID, bin). The engine never holds balances itself: it mints on buy,
// burns on sell and claim, and reads balances for claim validation.
package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// BinOffset biases negative bin indices into the unsigned range of the
// token-id encoding. Bins below -BinOffset are unrepresentable.
const BinOffset = 1_000_000_000

var ErrBinUnencodable = errors.New("position: bin index outside encodable range")

// TokenID encodes (marketID, bin) as (marketID << 128) | (bin + BinOffset).
// The encoding is bit-exact by contract: external indexers decode it without
// consulting the engine.
func TokenID(marketID uint64, bin int64) (*uint256.Int, error) {
	if bin < -BinOffset || bin > math.MaxInt64-BinOffset {
		return nil, fmt.Errorf("%w: %d", ErrBinUnencodable, bin)
	}
	id := new(uint256.Int).SetUint64(marketID)
	id.Lsh(id, 128)
	low := new(uint256.Int).SetUint64(uint64(bin + BinOffset))
	return id.Or(id, low), nil
}

// ParseTokenID reverses TokenID.
func ParseTokenID(id *uint256.Int) (marketID uint64, bin int64, err error) {
	high := new(uint256.Int).Rsh(id, 128)
	if !high.IsUint64() {
		return 0, 0, fmt.Errorf("position: token id %s: market id exceeds 64 bits", id.Dec())
	}
	low := new(uint256.Int).Set(id)
	low.Lsh(low, 128)
	low.Rsh(low, 128)
	if !low.IsUint64() || low.Uint64() > uint64(1)<<62 {
		return 0, 0, fmt.Errorf("position: token id %s: bin field out of range", id.Dec())
	}
	return high.Uint64(), int64(low.Uint64()) - BinOffset, nil
}

package position_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"RangeMarket/internal/position"
)

// ============================================================================
// Test: token id encoding
// ============================================================================

func TestTokenID_BitLayout(t *testing.T) {
	// (1 << 128) | (0 + 10^9), checked against an independently built value.
	id, err := position.TokenID(1, 0)
	if err != nil {
		t.Fatalf("TokenID: %v", err)
	}
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	want.Or(want, uint256.NewInt(1_000_000_000))
	if !id.Eq(want) {
		t.Errorf("got %s, want %s", id.Hex(), want.Hex())
	}
}

func TestTokenID_NegativeBin(t *testing.T) {
	id, err := position.TokenID(7, -360)
	if err != nil {
		t.Fatalf("TokenID: %v", err)
	}
	want := new(uint256.Int).Lsh(uint256.NewInt(7), 128)
	want.Or(want, uint256.NewInt(1_000_000_000-360))
	if !id.Eq(want) {
		t.Errorf("got %s, want %s", id.Hex(), want.Hex())
	}
}

func TestTokenID_Unencodable(t *testing.T) {
	if _, err := position.TokenID(0, -position.BinOffset-1); !errors.Is(err, position.ErrBinUnencodable) {
		t.Errorf("got %v, want ErrBinUnencodable", err)
	}
	if _, err := position.TokenID(0, -position.BinOffset); err != nil {
		t.Errorf("boundary bin should encode: %v", err)
	}
}

func TestTokenID_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		marketID := rapid.Uint64().Draw(t, "marketID")
		bin := rapid.Int64Range(-position.BinOffset, 1<<40).Draw(t, "bin")

		id, err := position.TokenID(marketID, bin)
		if err != nil {
			t.Fatalf("TokenID: %v", err)
		}
		gotMarket, gotBin, err := position.ParseTokenID(id)
		if err != nil {
			t.Fatalf("ParseTokenID: %v", err)
		}
		if gotMarket != marketID || gotBin != bin {
			t.Fatalf("round trip: got (%d, %d), want (%d, %d)", gotMarket, gotBin, marketID, bin)
		}
	})
}

// ============================================================================
// Test: MemoryLedger
// ============================================================================

func TestMemoryLedger_MintBurnBalance(t *testing.T) {
	l := position.NewMemoryLedger()
	account := uuid.New()
	token, _ := position.TokenID(0, 60)

	if got := l.BalanceOf(account, token); !got.IsZero() {
		t.Errorf("initial balance: got %s, want 0", got.Dec())
	}

	if err := l.Mint(account, token, uint256.NewInt(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Burn(account, token, uint256.NewInt(40)); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if got := l.BalanceOf(account, token); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("got %s, want 60", got.Dec())
	}
}

func TestMemoryLedger_BurnInsufficient(t *testing.T) {
	l := position.NewMemoryLedger()
	account := uuid.New()
	token, _ := position.TokenID(0, 60)

	if err := l.Mint(account, token, uint256.NewInt(10)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	err := l.Burn(account, token, uint256.NewInt(11))
	if !errors.Is(err, position.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	// Failed burn must not touch the balance.
	if got := l.BalanceOf(account, token); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("got %s, want 10", got.Dec())
	}
}

func TestMemoryLedger_TokensAreIndependent(t *testing.T) {
	l := position.NewMemoryLedger()
	account := uuid.New()
	tokenA, _ := position.TokenID(0, 0)
	tokenB, _ := position.TokenID(0, 60)
	other := uuid.New()

	if err := l.Mint(account, tokenA, uint256.NewInt(5)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := l.BalanceOf(account, tokenB); !got.IsZero() {
		t.Errorf("other token: got %s, want 0", got.Dec())
	}
	if got := l.BalanceOf(other, tokenA); !got.IsZero() {
		t.Errorf("other account: got %s, want 0", got.Dec())
	}
}

func TestMemoryLedger_MintOverflow(t *testing.T) {
	l := position.NewMemoryLedger()
	account := uuid.New()
	token, _ := position.TokenID(0, 0)

	max := new(uint256.Int)
	max.Not(max)
	if err := l.Mint(account, token, max); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint(account, token, uint256.NewInt(1)); err == nil {
		t.Fatal("overflowing mint should fail")
	}
	// Failed mint must not touch the balance.
	if got := l.BalanceOf(account, token); !got.Eq(max) {
		t.Errorf("balance changed on failed mint")
	}
}

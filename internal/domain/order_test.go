package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateOrder(t *testing.T) {
	price := decimal.NewFromInt(10)
	tests := []struct {
		name  string
		side  Side
		qty   int64
		price decimal.Decimal
		want  error
	}{
		{"buy", SideBuy, 1, price, nil},
		{"sell at zero", SideSell, 5, decimal.Zero, nil},
		{"unknown side", Side("HOLD"), 1, price, ErrUnrecognizedSide},
		{"lower case side", Side("buy"), 1, price, ErrUnrecognizedSide},
		{"zero quantity", SideBuy, 0, price, ErrInvalidQuantity},
		{"negative quantity", SideSell, -3, price, ErrInvalidQuantity},
		{"negative price", SideBuy, 1, decimal.NewFromInt(-1), ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrder(tt.side, tt.qty, tt.price)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("SELL"); err != nil || s != SideSell {
		t.Errorf("ParseSide(SELL) = %q, %v", s, err)
	}
	if _, err := ParseSide("SHORT"); !errors.Is(err, ErrUnrecognizedSide) {
		t.Errorf("expected ErrUnrecognizedSide, got %v", err)
	}
}

func TestOrder_Claim(t *testing.T) {
	o := NewOrder(1, SideSell, 10, decimal.NewFromInt(5))

	if !o.TryClaim() {
		t.Fatal("first claim should succeed")
	}
	if o.TryClaim() {
		t.Error("second claim should fail while held")
	}
	o.Release()
	if o.Claimed() {
		t.Error("order should be free after release")
	}

	s := NewSentinel(SideSell)
	if s.TryClaim() {
		t.Error("sentinel must never be claimable")
	}
	s.Release()
	if !s.Claimed() {
		t.Error("release must not free a sentinel")
	}
}

func TestOrder_Version(t *testing.T) {
	o := NewOrder(1, SideSell, 10, decimal.NewFromInt(5))

	expected := o.BeginAttempt()
	if !o.CommitVersion(expected) {
		t.Fatal("uncontended commit should succeed")
	}
	if o.Version() != 2 {
		t.Errorf("version = %d, want 2", o.Version())
	}

	// An interleaved attempt invalidates the first one
	expected = o.BeginAttempt()
	o.BeginAttempt()
	if o.CommitVersion(expected) {
		t.Error("commit should fail after another attempt moved the version")
	}
}

func TestOrder_ApplyFill(t *testing.T) {
	o := NewOrder(2, SideBuy, 100, decimal.NewFromInt(50))

	if _, ok := o.AveragePrice(); ok {
		t.Error("average price must be undefined before any execution")
	}

	if err := o.ApplyFill(50, decimal.NewFromInt(40), 1); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}
	if err := o.ApplyFill(25, decimal.NewFromInt(44), 3); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	v := o.View()
	if v.Active != 25 || v.Settled != 75 {
		t.Errorf("active/settled = %d/%d, want 25/75", v.Active, v.Settled)
	}
	if !v.Conserved() {
		t.Error("quantity not conserved")
	}
	if !v.Notional.Equal(decimal.NewFromInt(3100)) {
		t.Errorf("notional = %s, want 3100", v.Notional)
	}
	avg, ok := o.AveragePrice()
	if !ok || avg.StringFixed(2) != "41.33" {
		t.Errorf("average = %s (ok=%v), want 41.33", avg.StringFixed(2), ok)
	}
	if len(v.Counterparties) != 2 || v.Counterparties[0] != 1 || v.Counterparties[1] != 3 {
		t.Errorf("counterparties = %v, want [1 3]", v.Counterparties)
	}

	t.Run("over-fill rejected", func(t *testing.T) {
		if err := o.ApplyFill(26, decimal.NewFromInt(40), 4); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("expected ErrInvalidQuantity, got %v", err)
		}
		if o.Remaining() != 25 {
			t.Error("failed fill must not change state")
		}
	})

	t.Run("history is frozen", func(t *testing.T) {
		if !o.MarkHistory() {
			t.Fatal("first MarkHistory should succeed")
		}
		if o.MarkHistory() {
			t.Error("second MarkHistory should fail")
		}
		if err := o.ApplyFill(1, decimal.NewFromInt(40), 5); !errors.Is(err, ErrAlreadyInHistory) {
			t.Errorf("expected ErrAlreadyInHistory, got %v", err)
		}
	})
}

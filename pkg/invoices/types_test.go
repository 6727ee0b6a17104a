package invoices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDerived(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		taxRate   float64
		wantTax   float64
		wantTotal float64
	}{
		{"standard vat", 1000.00, 15, 150.00, 1150.00},
		{"zero rate", 500.00, 0, 0, 500.00},
		{"rounding", 99.99, 15, 15.00, 114.99},
		{"fractional rate", 200.00, 7.5, 15.00, 215.00},
		{"zero amount", 0, 15, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Invoice{Amount: tt.amount, TaxRate: tt.taxRate}
			inv.ComputeDerived()
			assert.Equal(t, tt.wantTax, inv.Tax)
			assert.Equal(t, tt.wantTotal, inv.Total)
		})
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	inv := &Invoice{Total: 1150.00}

	assert.Equal(t, 1150.00, inv.Remaining(0))
	assert.Equal(t, 650.00, inv.Remaining(500))
	assert.Equal(t, 0.00, inv.Remaining(1150))
	assert.Equal(t, 0.00, inv.Remaining(2000), "overpaid invoice still reports zero remaining")
}

func TestItemComputeTotal(t *testing.T) {
	item := &InvoiceItem{Quantity: 3, UnitPrice: 33.33}
	item.ComputeTotal()
	assert.Equal(t, 99.99, item.Total)
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{MethodCash, MethodBankTransfer, MethodCheck, MethodOther} {
		assert.True(t, m.Valid(), string(m))
	}
	assert.False(t, PaymentMethod("crypto").Valid())
}

func TestStandalone(t *testing.T) {
	contractID := int64(7)
	assert.True(t, (&Invoice{}).Standalone())
	assert.False(t, (&Invoice{ContractID: &contractID}).Standalone())
}

package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEffectivePrice(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name  string
		price decimal.Decimal
		sale  decimal.Decimal
		want  decimal.Decimal
	}{
		{name: "no sale price", price: d("100"), sale: d("0"), want: d("100")},
		{name: "sale below price", price: d("100"), sale: d("80"), want: d("80")},
		{name: "sale equal to price", price: d("100"), sale: d("100"), want: d("100")},
		{name: "sale above price", price: d("100"), sale: d("120"), want: d("100")},
		{name: "negative sale", price: d("100"), sale: d("-5"), want: d("100")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Price: tt.price, SalePrice: tt.sale}
			got := p.EffectivePrice()
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

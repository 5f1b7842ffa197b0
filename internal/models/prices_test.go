package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceEuros(t *testing.T) {
	tests := []struct {
		price    string
		expected int
		ok       bool
	}{
		{"159,95€", 159, true},
		{"48 €", 48, true},
		{"ab 29,99 €", 29, true},
		{"1.234,50 €", 1234, true},
		{"ausgebucht", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			euros, ok := PriceEuros(tt.price)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, euros)
		})
	}
}

func TestSortedPrices(t *testing.T) {
	prices := map[string]string{
		"Flexpreis":       "159,95€",
		"Sparpreis":       "63,23€",
		"Super Sparpreis": "48,12€",
		"Sonderangebot":   "auf Anfrage",
	}

	offers := SortedPrices(prices)

	names := make([]string, 0, len(offers))
	for _, offer := range offers {
		names = append(names, offer.Name)
	}
	assert.Equal(t, []string{"Super Sparpreis", "Sparpreis", "Flexpreis", "Sonderangebot"}, names)

	cheapest, ok := CheapestPrice(prices)
	assert.True(t, ok)
	assert.Equal(t, Offer{Name: "Super Sparpreis", Price: "48,12€"}, cheapest)

	_, ok = CheapestPrice(nil)
	assert.False(t, ok)
}

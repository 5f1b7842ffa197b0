package models

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Offer is one fare with its localized price text.
type Offer struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// PriceEuros extracts the integer euro part of a localized price such as
// "159,95€", "48 €" or "ab 29,99 €". ok is false when no number is present.
func PriceEuros(price string) (int, bool) {
	start := strings.IndexFunc(price, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(price) && (price[end] >= '0' && price[end] <= '9' || price[end] == '.') {
		end++
	}
	// "1.234,50" uses a dot as thousands separator
	digits := strings.ReplaceAll(price[start:end], ".", "")
	euros, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return euros, true
}

// SortedPrices orders the offers by ascending price; unparseable prices go last.
func SortedPrices(prices map[string]string) []Offer {
	offers := make([]Offer, 0, len(prices))
	for name, price := range prices {
		offers = append(offers, Offer{Name: name, Price: price})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		pi, oki := PriceEuros(offers[i].Price)
		pj, okj := PriceEuros(offers[j].Price)
		if oki != okj {
			return oki
		}
		if pi != pj {
			return pi < pj
		}
		return offers[i].Name < offers[j].Name
	})
	return offers
}

// CheapestPrice returns the cheapest offer, if any.
func CheapestPrice(prices map[string]string) (Offer, bool) {
	offers := SortedPrices(prices)
	if len(offers) == 0 {
		return Offer{}, false
	}
	return offers[0], true
}

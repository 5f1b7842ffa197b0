package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickOffer(t *testing.T) {
	tests := []struct {
		name   string
		prices []string
		want   int
	}{
		{name: "cheapest wins", prices: []string{"159,95 €", "48,99 €", "63,23 €"}, want: 1},
		{name: "unreadable prices are passed over", prices: []string{"Preis auf Anfrage", "63,23 €"}, want: 1},
		{name: "first offer when no price is readable", prices: []string{"Preis auf Anfrage", "–"}, want: 0},
		{name: "no offers", prices: nil, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickOffer(tt.prices))
		})
	}
}

func TestSeatMapPanel(t *testing.T) {
	sel := DefaultSelectors()

	assert.Equal(t, `[id="seatmap-leg-2"]`, seatMapPanel(sel, " seatmap-leg-2 ", 1),
		"the panel named by the tab is used")
	assert.Equal(t, ".platzbuchung-abschnitt__panel >> nth=1", seatMapPanel(sel, "", 1),
		"without aria-controls the panel at the leg's position is used")
}

package models

// ConnectionSummary is a connection together with the verdicts a client
// sorts and filters by.
type ConnectionSummary struct {
	Connection
	Assessment   ReservationStatus `json:"assessment"`
	TrainChanges int               `json:"trainChanges"`
	Cheapest     *Offer            `json:"cheapest,omitempty"`
	// Alternatives names, per train that misses the desired category, the
	// next category with enough free seats.
	Alternatives map[string]SeatCategory `json:"alternatives,omitempty"`
}

func NewConnectionSummary(conn Connection, params SearchParameters) ConnectionSummary {
	summary := ConnectionSummary{
		Connection:   conn,
		Assessment:   conn.Assess(params),
		TrainChanges: conn.NumTrainChanges(),
	}
	if offer, ok := CheapestPrice(conn.Prices); ok {
		summary.Cheapest = &offer
	}
	seats := params.SeatsNeeded()
	for _, train := range conn.Trains {
		if train.Reservation.Satisfies(params.ReservationCategory, seats) {
			continue
		}
		if alt, ok := train.Reservation.BestAlternative(params.ReservationCategory, seats); ok {
			if summary.Alternatives == nil {
				summary.Alternatives = make(map[string]SeatCategory)
			}
			summary.Alternatives[train.ID] = alt
		}
	}
	return summary
}

func NewConnectionSummaries(conns []Connection, params SearchParameters) []ConnectionSummary {
	out := make([]ConnectionSummary, 0, len(conns))
	for _, conn := range conns {
		out = append(out, NewConnectionSummary(conn, params))
	}
	return out
}

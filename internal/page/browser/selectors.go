package browser

// Selectors locate the parts of the booking site. Item-relative selectors
// are resolved inside one listing entry, leg-relative ones inside one leg.
// DifferentDate must match the day-change marker of the departure only; the
// arrival column carries its own marker for overnight connections.
type Selectors struct {
	CookieAccept string

	ResultItem    string
	NoResults     string
	StartTime     string
	EndTime       string
	Duration      string
	StartStation  string
	FinalStation  string
	DateDivider   string
	DifferentDate string
	LaterButton   string

	LegToggle    string
	Leg          string
	LegStart     string
	LegEnd       string
	LegStartStop string
	LegEndStop   string
	LegDuration  string
	LegTrainID   string

	DetailButton string
	AgeInput     string
	AgeSubmit    string

	FareOffer       string
	FareName        string
	FarePrice       string
	FareSelect      string
	SeatReservation string
	SeatMapTab      string
	SeatMapPanel    string
	SeatMapFrame    string
	SeatMapClose    string
	Seat            string
	SeatCar         string
	FreeSeatClass   string
	BackToListing   string
}

// DefaultSelectors match the booking site's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		CookieAccept: "button.js-accept-essential-cookies",

		ResultItem:    "#resultsOverviewContainer .verbindung-list__result-item",
		NoResults:     ".reiseloesung-list__no-results",
		StartTime:     ".reiseplan__uebersicht-uhrzeit-von time",
		EndTime:       ".reiseplan__uebersicht-uhrzeit-nach time",
		Duration:      ".dauer-umstieg__dauer",
		StartStation:  ".test-reise-beschreibung-start-value",
		FinalStation:  ".test-reise-beschreibung-ziel-value",
		DateDivider:   ".reiseloesung-heading__date",
		DifferentDate: ".reiseplan__uebersicht-uhrzeit-von .tag-wechsel",
		LaterButton:   "button.reiseloesung-list-page__later-button",

		LegToggle:    "button.reiseplan__details-button",
		Leg:          ".verbindungsabschnitt",
		LegStart:     ".verbindungsabschnitt-zeiten__abfahrt time",
		LegEnd:       ".verbindungsabschnitt-zeiten__ankunft time",
		LegStartStop: ".verbindungsabschnitt-halt__abfahrt .test-halt-name",
		LegEndStop:   ".verbindungsabschnitt-halt__ankunft .test-halt-name",
		LegDuration:  ".verbindungsabschnitt-dauer",
		LegTrainID:   ".verbindungsabschnitt-visualisierung__verkehrsmittel-text",

		DetailButton: "button.reiseloesung-button-container__btn-waehlen",
		AgeInput:     "input[id^='travellerAge']",
		AgeSubmit:    "button.reisende-alter__submit",

		FareOffer:       ".angebot-container .angebot-card",
		FareName:        ".angebot-card__title",
		FarePrice:       ".angebot-card__preis",
		FareSelect:      "button.angebot-card__auswahl-button",
		SeatReservation: "input#sitzplatzreservierung-checkbox",
		SeatMapTab:      "button.platzbuchung-abschnitt__tab",
		SeatMapPanel:    ".platzbuchung-abschnitt__panel",
		SeatMapFrame:    "iframe.platzbuchung__frame",
		SeatMapClose:    "button.platzbuchung__schliessen",
		Seat:            ".platzbuchung-wagen [data-sitzplatz]",
		SeatCar:         "data-wagen",
		FreeSeatClass:   "sitzplatz--frei",
		BackToListing:   "a.zurueck-zur-verbindungsauswahl",
	}
}

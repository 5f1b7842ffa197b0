package browser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"ressuche.dev/internal/models"
)

// Traveler codes of the booking site's query string.
var (
	ageGroupCodes = map[models.AgeGroup]string{
		models.AgeGroupChild0To5:   "8",
		models.AgeGroupChild6To14:  "11",
		models.AgeGroupYouth15To26: "9",
		models.AgeGroupAdult27To64: "13",
		models.AgeGroupSenior65:    "12",
		models.AgeGroupDog:         "14",
		models.AgeGroupBike:        "3",
	}
	fareCardCodes = map[models.FareCard]map[models.FareCardClass]string{
		models.FareCardBC25:         {models.FareCardClassSecond: "17", models.FareCardClassFirst: "18"},
		models.FareCardBC50:         {models.FareCardClassSecond: "23", models.FareCardClassFirst: "24"},
		models.FareCardBC100:        {models.FareCardClassSecond: "27", models.FareCardClassFirst: "28"},
		models.FareCardBC25Business: {models.FareCardClassSecond: "19", models.FareCardClassFirst: "20"},
		models.FareCardBC50Business: {models.FareCardClassSecond: "25", models.FareCardClassFirst: "26"},
	}
	noFareCardCode = "16"
)

const (
	defaultAdultAge = 42
	defaultChildAge = 3
)

var listingDatePattern = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4}|\d{2})\b`)

// QueryURL builds the listing URL for params below base.
func QueryURL(base string, params models.SearchParameters) string {
	values := url.Values{}
	values.Set("sts", "true")
	values.Set("so", params.StartStation)
	values.Set("zo", params.FinalStation)
	if params.StartStationID != "" {
		values.Set("soid", params.StartStationID)
	}
	if params.FinalStationID != "" {
		values.Set("zoid", params.FinalStationID)
	}
	values.Set("kl", "2")
	values.Set("r", travelerParam(params.Passengers))
	values.Set("hd", fmt.Sprintf("%sT%s:00", params.TravelDate.Format("2006-01-02"), params.EffectiveEarliestDepTime()))
	values.Set("hza", "D")
	values.Set("ar", "false")
	values.Set("s", "true")
	values.Set("d", fmt.Sprintf("%t", params.OnlyDirect))
	if params.OnlyFast {
		values.Set("vm", "00,01,02")
	}
	values.Set("fm", "false")
	values.Set("bp", "false")
	return strings.TrimRight(base, "/") + "/buchung/fahrplan/suche#" + values.Encode()
}

// travelerParam encodes passengers as group:card:class:count entries.
// Without passengers a single adult travels.
func travelerParam(passengers []models.Passenger) string {
	if len(passengers) == 0 {
		passengers = []models.Passenger{{AgeGroup: models.AgeGroupAdult27To64}}
	}
	entries := make([]string, 0, len(passengers))
	for _, p := range passengers {
		group, ok := ageGroupCodes[p.AgeGroup]
		if !ok {
			group = ageGroupCodes[models.AgeGroupAdult27To64]
		}
		card := noFareCardCode
		if byClass, ok := fareCardCodes[p.FareCard]; ok {
			if code, ok := byClass[p.FareCardClass]; ok {
				card = code
			} else {
				card = byClass[models.FareCardClassSecond]
			}
		}
		entry := fmt.Sprintf("%s:%s:KLASSENLOS:1", group, card)
		if p.Age > 0 {
			entry += fmt.Sprintf(":%d", p.Age)
		}
		entries = append(entries, entry)
	}
	return strings.Join(entries, "|")
}

// AgesForInput returns the ages typed into the age form for every traveler
// that needs a seat. Children of family and toddler searches keep their age
// (or a toddler's age when unknown) so the site offers those compartments.
func AgesForInput(params models.SearchParameters) []int {
	passengers := params.Passengers
	if len(passengers) == 0 {
		return []int{defaultAdultAge}
	}
	childCompartment := params.ReservationCategory == models.SeatCategoryFamily ||
		params.ReservationCategory == models.SeatCategoryToddler

	ages := make([]int, 0, len(passengers))
	for _, p := range passengers {
		if p.AgeGroup == models.AgeGroupDog || p.AgeGroup == models.AgeGroupBike {
			continue
		}
		switch {
		case p.AgeGroup.IsChild() && childCompartment && p.Age > 0:
			ages = append(ages, p.Age)
		case p.AgeGroup.IsChild() && childCompartment:
			ages = append(ages, defaultChildAge)
		case p.Age > 0:
			ages = append(ages, p.Age)
		default:
			ages = append(ages, defaultAdultAge)
		}
	}
	return ages
}

// normalizeListingDate extracts a DD.MM.YYYY date from a date divider such
// as "Mi. 21.10.26". Two digit years are taken as 20YY.
func normalizeListingDate(text string) string {
	m := listingDatePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	year := m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return m[1] + "." + m[2] + "." + year
}

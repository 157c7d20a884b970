// Package generator supplies the random domain data the orchestrator draws
// when creating exchanges, assets, and entities: place and participant
// names, margins, opening rates, issue sizes, company figures, dates, and
// PESEL identifiers.
//
// Every draw is a pure function of the injected rand.Rand, so a fixed seed
// reproduces an identical simulation.
package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptySource is returned when a draw source list has no entries.
	ErrEmptySource = errors.New("generator: source list must not be empty")

	// ErrInvalidBounds is returned for degenerate numeric boundaries.
	ErrInvalidBounds = errors.New("generator: invalid numeric bounds")
)

// Bounds for the numeric draws. These mirror the documented ranges of the
// domain: margins in [0.01, 0.15], opening rates in [1, 7], issue sizes in
// [1000, 100000].
const (
	MarginMin = 0.01
	MarginMax = 0.15

	OpeningRateMin = 1.0
	OpeningRateMax = 7.0

	IssuedUnitsMin = 1000
	IssuedUnitsMax = 100000

	RevenueMax = 1_000_000.0
	ProfitMax  = 250_000.0
	CapitalMax = 500_000.0
)

// Sources holds the lists and bounds the generator draws from.
type Sources struct {
	Cities       []string
	Countries    []string
	FirstNames   []string
	LastNames    []string
	CompanyNames []string
	FundNames    []string
	Currencies   []string
	Commodities  []string

	// YearMin/YearMax bound historical date draws, inclusive.
	YearMin int
	YearMax int
}

// DefaultSources returns the built-in draw lists.
func DefaultSources() Sources {
	return Sources{
		Cities: []string{
			"Warszawa", "Kraków", "Gdańsk", "Wrocław", "Poznań",
			"London", "Frankfurt", "New York", "Tokyo", "Zurich",
		},
		Countries: []string{
			"Poland", "Germany", "United Kingdom", "United States",
			"Japan", "Switzerland", "France", "Netherlands",
		},
		FirstNames: []string{
			"Jan", "Anna", "Piotr", "Maria", "Tomasz", "Katarzyna",
			"Marek", "Agnieszka", "Paweł", "Ewa",
		},
		LastNames: []string{
			"Kowalski", "Nowak", "Wiśniewski", "Wójcik", "Kowalczyk",
			"Kamiński", "Lewandowski", "Zieliński", "Szymański", "Dąbrowski",
		},
		CompanyNames: []string{
			"Orbis", "Polfa", "Stalexport", "Energopol", "Budimex",
			"Agora", "Kęty", "Dębica", "Forte", "Amica",
		},
		FundNames: []string{
			"Pioneer", "Arka", "Skarbiec", "Legg Mason", "Aviva",
			"Quercus", "Noble", "Ipopema",
		},
		Currencies: []string{
			"PLN", "EUR", "USD", "GBP", "CHF", "JPY", "SEK", "NOK",
		},
		Commodities: []string{
			"Gold", "Silver", "Copper", "Crude Oil", "Natural Gas",
			"Wheat", "Corn", "Coffee", "Sugar", "Cotton",
		},
		YearMin: 1945,
		YearMax: 2002,
	}
}

// Generator draws domain values from validated sources. Construct with
// New; a zero Generator is not usable.
//
// Generator is not safe for concurrent use: each worker and the
// orchestrator hold their own rand.Rand, and the orchestrator draws only
// from its own execution context.
type Generator struct {
	rng *rand.Rand
	src Sources
}

// New validates the sources and creates a generator. Empty source lists
// and degenerate year bounds are configuration errors and fail fast.
func New(rng *rand.Rand, src Sources) (*Generator, error) {
	lists := map[string][]string{
		"cities":      src.Cities,
		"countries":   src.Countries,
		"first names": src.FirstNames,
		"last names":  src.LastNames,
		"companies":   src.CompanyNames,
		"funds":       src.FundNames,
		"currencies":  src.Currencies,
		"commodities": src.Commodities,
	}
	for label, list := range lists {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptySource, label)
		}
	}
	if src.YearMin <= 0 || src.YearMax < src.YearMin {
		return nil, fmt.Errorf("%w: years [%d, %d]", ErrInvalidBounds, src.YearMin, src.YearMax)
	}
	return &Generator{rng: rng, src: src}, nil
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

// City draws a place name.
func (g *Generator) City() string { return g.pick(g.src.Cities) }

// Country draws a country name.
func (g *Generator) Country() string { return g.pick(g.src.Countries) }

// PersonName draws a "First Last" investor name.
func (g *Generator) PersonName() string {
	return g.pick(g.src.FirstNames) + " " + g.pick(g.src.LastNames)
}

// CompanyName draws a company name.
func (g *Generator) CompanyName() string { return g.pick(g.src.CompanyNames) }

// FundName draws an investment fund name.
func (g *Generator) FundName() string { return g.pick(g.src.FundNames) }

// CurrencyName draws a currency code.
func (g *Generator) CurrencyName() string { return g.pick(g.src.Currencies) }

// CommodityName draws a commodity name.
func (g *Generator) CommodityName() string { return g.pick(g.src.Commodities) }

// Margin draws a transaction fee fraction in [MarginMin, MarginMax].
func (g *Generator) Margin() decimal.Decimal {
	return g.decimalBetween(MarginMin, MarginMax, 4)
}

// OpeningRate draws an initial asset rate in [OpeningRateMin, OpeningRateMax].
func (g *Generator) OpeningRate() decimal.Decimal {
	return g.decimalBetween(OpeningRateMin, OpeningRateMax, 2)
}

// IssuedUnits draws an initial issue size in [IssuedUnitsMin, IssuedUnitsMax].
func (g *Generator) IssuedUnits() int64 {
	return IssuedUnitsMin + g.rng.Int63n(IssuedUnitsMax-IssuedUnitsMin+1)
}

// Revenue draws a company revenue figure.
func (g *Generator) Revenue() decimal.Decimal {
	return g.decimalBetween(0, RevenueMax, 2)
}

// Profit draws a company profit figure.
func (g *Generator) Profit() decimal.Decimal {
	return g.decimalBetween(0, ProfitMax, 2)
}

// Capital draws a company capital figure.
func (g *Generator) Capital() decimal.Decimal {
	return g.decimalBetween(0, CapitalMax, 2)
}

// Date draws a historical date within the configured year range.
func (g *Generator) Date() time.Time {
	year := g.src.YearMin + g.rng.Intn(g.src.YearMax-g.src.YearMin+1)
	month := time.Month(1 + g.rng.Intn(12))
	// Day 1..28 keeps every month valid.
	day := 1 + g.rng.Intn(28)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// PESEL draws an 11-digit numeric identifier.
func (g *Generator) PESEL() string {
	digits := make([]byte, 11)
	// First digit non-zero so the identifier keeps its length as a number.
	digits[0] = byte('1' + g.rng.Intn(9))
	for i := 1; i < len(digits); i++ {
		digits[i] = byte('0' + g.rng.Intn(10))
	}
	return string(digits)
}

func (g *Generator) decimalBetween(min, max float64, places int32) decimal.Decimal {
	v := min + g.rng.Float64()*(max-min)
	return decimal.NewFromFloat(v).Round(places)
}

package scheduler

import (
	"math"
)

// Category is one of the fixed subsystem classes gated by the rate table.
type Category int

const (
	// WorldStreaming loads and unloads world chunks around the player.
	WorldStreaming Category = iota
	// AICoordination runs squad-level AI planning.
	AICoordination
	// HazardVisibility refreshes which hazards are shown.
	HazardVisibility
	// PickupChecks tests proximity to collectible items.
	PickupChecks
	// MultiplayerSync sends outbound state; its period never exceeds 2.
	MultiplayerSync

	// CategoryCount is the number of categories; arrays indexed by Category use it.
	CategoryCount
)

// Categories lists every category in gating order.
var Categories = [CategoryCount]Category{
	WorldStreaming,
	AICoordination,
	HazardVisibility,
	PickupChecks,
	MultiplayerSync,
}

// String returns the snake_case name used in logs and recordings.
func (c Category) String() string {
	switch c {
	case WorldStreaming:
		return "world_streaming"
	case AICoordination:
		return "ai_coordination"
	case HazardVisibility:
		return "hazard_visibility"
	case PickupChecks:
		return "pickup_checks"
	case MultiplayerSync:
		return "multiplayer_sync"
	default:
		return "unknown"
	}
}

func (c Category) valid() bool {
	return c >= 0 && c < CategoryCount
}

// Band is a measured frame-rate band, ordered from best to worst.
type Band int

const (
	// BandNominal is 60 fps or better.
	BandNominal Band = iota
	// BandSlight is 55 to 60 fps.
	BandSlight
	// BandModerate is 45 to 55 fps.
	BandModerate
	// BandHeavy is 35 to 45 fps.
	BandHeavy
	// BandSevere is 25 to 35 fps.
	BandSevere
	// BandCritical is below 25 fps; periods sit at their ceilings.
	BandCritical
)

// String returns the lowercase band name used in logs and recordings.
func (b Band) String() string {
	switch b {
	case BandNominal:
		return "nominal"
	case BandSlight:
		return "slight"
	case BandModerate:
		return "moderate"
	case BandHeavy:
		return "heavy"
	case BandSevere:
		return "severe"
	default:
		return "critical"
	}
}

// bandThresholds is checked top to bottom; the first row whose floor the fps
// reaches wins. A zero multiplier means the category ceiling.
var bandThresholds = []struct {
	band       Band
	minFPS     float64
	multiplier float64
}{
	{band: BandNominal, minFPS: 60, multiplier: 1},
	{band: BandSlight, minFPS: 55, multiplier: 1.5},
	{band: BandModerate, minFPS: 45, multiplier: 2},
	{band: BandHeavy, minFPS: 35, multiplier: 3},
	{band: BandSevere, minFPS: 25, multiplier: 4},
	{band: BandCritical, minFPS: math.Inf(-1), multiplier: 0},
}

// ClassifyFPS maps a frame rate to its band. Negative and NaN inputs count as zero.
func ClassifyFPS(fps float64) Band {
	if math.IsNaN(fps) || fps < 0 {
		fps = 0
	}
	for _, row := range bandThresholds {
		if fps >= row.minFPS {
			return row.band
		}
	}
	return BandCritical
}

// SyncPeriodFor returns the multiplayer sync period for a band. At the nominal
// band every other frame still gives 30 Hz; below it the sync runs every frame so
// the wall-clock send rate does not collapse with the frame rate.
func SyncPeriodFor(band Band) uint32 {
	if band == BandNominal {
		return 2
	}
	return 1
}

// CategoryRate is the base period and the worst-case ceiling of a scaled category.
type CategoryRate struct {
	Base    uint32
	Ceiling uint32
}

// DefaultCategoryRates returns the production base periods for scaled categories.
func DefaultCategoryRates() map[Category]CategoryRate {
	return map[Category]CategoryRate{
		WorldStreaming:   {Base: 2, Ceiling: 16},
		AICoordination:   {Base: 2, Ceiling: 12},
		HazardVisibility: {Base: 3, Ceiling: 20},
		PickupChecks:     {Base: 4, Ceiling: 24},
	}
}

// RateTable holds the current period in frames for every category. It is owned
// by the frame driver, mutated in place by the RateController and read every frame.
type RateTable struct {
	periods [CategoryCount]uint32
	band    Band
}

// Period returns the period for c, never less than one.
func (t *RateTable) Period(c Category) uint32 {
	if t == nil || !c.valid() || t.periods[c] == 0 {
		return 1
	}
	return t.periods[c]
}

// Band returns the band the table was last computed for.
func (t *RateTable) Band() Band {
	if t == nil {
		return BandNominal
	}
	return t.band
}

// Open reports whether category c runs on tick.
func (t *RateTable) Open(c Category, tick uint32) bool {
	return tick%t.Period(c) == 0
}

// Periods returns a copy of every period indexed by category.
func (t *RateTable) Periods() [CategoryCount]uint32 {
	var out [CategoryCount]uint32
	for _, c := range Categories {
		out[c] = t.Period(c)
	}
	return out
}

// RateController recomputes a RateTable from the measured frame rate.
type RateController struct {
	rates [CategoryCount]CategoryRate
	table *RateTable
}

// NewRateController binds a controller to table and seeds it for the nominal band.
func NewRateController(table *RateTable, rates map[Category]CategoryRate) *RateController {
	if rates == nil {
		rates = DefaultCategoryRates()
	}
	c := &RateController{table: table}
	for category, rate := range rates {
		if !category.valid() || category == MultiplayerSync {
			continue
		}
		if rate.Base == 0 {
			rate.Base = 1
		}
		if rate.Ceiling < rate.Base {
			rate.Ceiling = rate.Base
		}
		c.rates[category] = rate
	}
	for _, category := range Categories {
		if category != MultiplayerSync && c.rates[category].Base == 0 {
			c.rates[category] = CategoryRate{Base: 1, Ceiling: 1}
		}
	}
	c.apply(BandNominal)
	return c
}

// Recompute updates the table in place for fps and reports the resulting band and
// whether it differs from the previous one.
func (c *RateController) Recompute(fps float64) (Band, bool) {
	band := ClassifyFPS(fps)
	changed := band != c.table.band
	c.apply(band)
	return band, changed
}

func (c *RateController) apply(band Band) {
	multiplier := 0.0
	for _, row := range bandThresholds {
		if row.band == band {
			multiplier = row.multiplier
			break
		}
	}
	for _, category := range Categories {
		if category == MultiplayerSync {
			continue
		}
		rate := c.rates[category]
		period := rate.Ceiling
		if multiplier > 0 {
			//1.- Scale the base period and round up so a 1.5x band never undershoots.
			period = uint32(math.Ceil(float64(rate.Base) * multiplier))
			if period > rate.Ceiling {
				period = rate.Ceiling
			}
		}
		c.table.periods[category] = period
	}
	//2.- Network sync sits outside the scaling so it never starves.
	c.table.periods[MultiplayerSync] = SyncPeriodFor(band)
	c.table.band = band
}

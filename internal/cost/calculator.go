package cost

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// BytesPerGB converts byte counts to the GB unit prices are quoted in (binary GiB).
const BytesPerGB = 1024 * 1024 * 1024

// DefaultRate is the monthly price per GB charged for an unknown provider.
const DefaultRate = 0.01

// Technique is a storage optimization with an assumed savings ratio.
type Technique string

const (
	Compression   Technique = "compression"
	Deduplication Technique = "deduplication"
	Archiving     Technique = "archiving"
	Cleanup       Technique = "cleanup"
)

// DefaultTechniques returns the assumed savings ratio per technique.
func DefaultTechniques() map[Technique]float64 {
	return map[Technique]float64{
		Compression:   0.3,
		Deduplication: 0.15,
		Archiving:     0.5,
		Cleanup:       0.2,
	}
}

// Calculator prices storage using a per-provider rate table.
type Calculator struct {
	rates      map[string]float64
	fallback   float64
	techniques map[Technique]float64
}

// NewCalculator creates a Calculator. Provider names in rates are normalized, so
// "google_drive" and "googledrive" share an entry. A non-positive fallback uses DefaultRate.
func NewCalculator(rates map[string]float64, fallback float64) *Calculator {
	if fallback <= 0 {
		fallback = DefaultRate
	}
	c := &Calculator{
		rates:      make(map[string]float64, len(rates)),
		fallback:   fallback,
		techniques: DefaultTechniques(),
	}
	for p, r := range rates {
		c.rates[NormalizeProvider(p)] = r
	}
	return c
}

// WithTechniques replaces the optimization ratios.
func (c *Calculator) WithTechniques(t map[Technique]float64) *Calculator {
	if len(t) > 0 {
		c.techniques = t
	}
	return c
}

// NormalizeProvider lowercases a provider name and strips separators.
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(p)
}

// Rate returns the monthly price per GB for provider.
func (c *Calculator) Rate(provider string) float64 {
	if r, ok := c.rates[NormalizeProvider(provider)]; ok {
		return r
	}
	return c.fallback
}

// ProviderCosts returns a copy of the rate table keyed by normalized provider.
func (c *Calculator) ProviderCosts() map[string]float64 {
	out := make(map[string]float64, len(c.rates))
	for p, r := range c.rates {
		out[p] = r
	}
	return out
}

// StorageCost returns the monthly cost of sizeGB on provider.
func (c *Calculator) StorageCost(sizeGB float64, provider string) float64 {
	return sizeGB * c.Rate(provider)
}

// Savings is the difference between a current and an optimized cost.
func Savings(current, optimized float64) float64 {
	return current - optimized
}

// MonthlySavings prices the removal of duplicateGB on provider.
func (c *Calculator) MonthlySavings(duplicateGB float64, provider string) float64 {
	return c.StorageCost(duplicateGB, provider)
}

// YearlySavings is twelve months of MonthlySavings.
func (c *Calculator) YearlySavings(duplicateGB float64, provider string) float64 {
	return c.MonthlySavings(duplicateGB, provider) * 12
}

// Potential is the projected effect of one optimization technique.
type Potential struct {
	SavingsGB         float64 `json:"savings_gb"`
	MonthlySavings    float64 `json:"monthly_savings"`
	YearlySavings     float64 `json:"yearly_savings"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// OptimizationPotential projects every technique over the summed category sizes (in GB).
func (c *Calculator) OptimizationPotential(sizesGBByCategory map[string]float64, provider string) map[Technique]Potential {
	// Sum in a fixed order so the result does not depend on map iteration.
	categories := make([]string, 0, len(sizesGBByCategory))
	for k := range sizesGBByCategory {
		categories = append(categories, k)
	}
	sort.Strings(categories)
	var totalGB float64
	for _, k := range categories {
		totalGB += sizesGBByCategory[k]
	}

	out := make(map[Technique]Potential, len(c.techniques))
	for t, ratio := range c.techniques {
		savingsGB := totalGB * ratio
		monthly := c.StorageCost(savingsGB, provider)
		out[t] = Potential{
			SavingsGB:         savingsGB,
			MonthlySavings:    monthly,
			YearlySavings:     monthly * 12,
			SavingsPercentage: ratio * 100,
		}
	}
	return out
}

// ROI is the return on an optimization investment. Infinite values are
// meaningful here and are not errors.
type ROI struct {
	ROIPercentage float64 `json:"roi_percentage"`
	PaybackMonths float64 `json:"payback_months"`
	NetSavings    float64 `json:"net_savings"`
}

// CalculateROI returns the ROI of spending investment to save yearly per year.
func CalculateROI(investment, yearly float64) ROI {
	if investment == 0 {
		return ROI{
			ROIPercentage: math.Inf(1),
			PaybackMonths: 0,
			NetSavings:    yearly,
		}
	}

	payback := math.Inf(1)
	if yearly > 0 {
		payback = investment / yearly * 12
	}
	return ROI{
		ROIPercentage: (yearly - investment) / investment * 100,
		PaybackMonths: payback,
		NetSavings:    yearly - investment,
	}
}

// MarshalJSON encodes infinite values as "inf", which JSON numbers cannot hold.
func (r ROI) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ROIPercentage any     `json:"roi_percentage"`
		PaybackMonths any     `json:"payback_months"`
		NetSavings    float64 `json:"net_savings"`
	}{jsonFloat(r.ROIPercentage), jsonFloat(r.PaybackMonths), r.NetSavings})
}

func jsonFloat(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return f
}

// GB converts bytes to GB.
func GB(bytes int64) float64 {
	return float64(bytes) / BytesPerGB
}

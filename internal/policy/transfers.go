package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const (
	lowCoverDays    = 7
	urgentCoverDays = 3
	imbalanceFactor = 2
)

// Transfers recommends, per SKU, moving stock from the location with the most
// days of supply to the one with the least when the poorer location has under
// a week of cover and the richer one more than twice as much. At most half of
// the donor's stock and a week of the receiver's demand is moved.
func Transfers(locations []domain.StockLocation) []domain.TransferRecommendation {
	bySKU := make(map[string][]domain.StockLocation)
	var skus []string
	for _, l := range locations {
		if _, ok := bySKU[l.SKU]; !ok {
			skus = append(skus, l.SKU)
		}
		bySKU[l.SKU] = append(bySKU[l.SKU], l)
	}
	sort.Strings(skus)

	var out []domain.TransferRecommendation
	for _, sku := range skus {
		locs := bySKU[sku]
		if len(locs) < 2 {
			continue
		}
		sort.SliceStable(locs, func(i, j int) bool {
			di, dj := daysOfSupply(locs[i]), daysOfSupply(locs[j])
			if di != dj {
				return di < dj
			}
			return locs[i].Location < locs[j].Location
		})
		low, high := locs[0], locs[len(locs)-1]
		lowDays, highDays := daysOfSupply(low), daysOfSupply(high)
		if lowDays >= lowCoverDays || highDays <= imbalanceFactor*lowDays {
			continue
		}

		qty := math.Min(math.Floor(math.Max(0, high.OnHand)/2), math.Floor(low.DailyDemand*lowCoverDays))
		if qty <= 0 {
			continue
		}
		priority := domain.PriorityMedium
		if lowDays < urgentCoverDays {
			priority = domain.PriorityHigh
		}
		out = append(out, domain.TransferRecommendation{
			SKU:      sku,
			From:     high.Location,
			To:       low.Location,
			Quantity: qty,
			Reason:   fmt.Sprintf("balancing inventory: %.1f days vs %.1f days", highDays, lowDays),
			Priority: priority,
		})
	}
	return out
}

// daysOfSupply is +Inf for a location without demand.
func daysOfSupply(l domain.StockLocation) float64 {
	if l.DailyDemand <= 0 {
		return math.Inf(1)
	}
	return math.Max(0, l.OnHand) / l.DailyDemand
}

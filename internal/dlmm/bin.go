package dlmm

import "math"

// MaxBinsPerPosition is the protocol limit on the bin span a single position
// can cover.
const MaxBinsPerPosition = 70

// Shape selects the liquidity distribution across the bin range.
type Shape string

const (
	ShapeSpot   Shape = "spot"
	ShapeCurve  Shape = "curve"
	ShapeBidAsk Shape = "bidask"
)

// BinIDFromPrice maps a human price (quote per base) to the bin id whose
// price floor contains it. Bin prices grow geometrically by binStep basis
// points per bin, anchored at bin 0 = 1 raw quote unit per raw base unit, so
// the price is first scaled into raw-unit terms.
func BinIDFromPrice(price float64, binStep, baseDecimals, quoteDecimals int) int32 {
	lamportPrice := price * math.Pow(10, float64(quoteDecimals-baseDecimals))
	binID := math.Log(lamportPrice) / math.Log(1+float64(binStep)/10000)
	return int32(math.Floor(binID))
}

// Package roi computes financial projections for an asset. All monetary
// amounts are integer minor-currency units; the ROI ratio is expressed in
// basis points so no float ever touches money.
package roi

import "errors"

// ErrZeroTotalCost is returned when the inputs sum to a zero total cost,
// which would make the ROI ratio undefined.
var ErrZeroTotalCost = errors.New("total cost is zero; roi undefined")

// Inputs are the cost and revenue estimates for one projection.
type Inputs struct {
	AcquisitionPrice   int64
	Taxes              int64
	LegalCosts         int64
	RenovationEstimate int64
	ExpectedResale     int64
	ExpectedResaleDate *string
}

// Outputs are always derived together and never edited independently.
type Outputs struct {
	TotalCost      int64
	NetProfit      int64
	ROIBasisPoints int64
	BreakEvenDate  *string
}

// Calculate derives the projection outputs from the inputs. A missing
// resale date yields a missing break-even date, not an error.
func Calculate(in Inputs) (Outputs, error) {
	total := in.AcquisitionPrice + in.Taxes + in.LegalCosts + in.RenovationEstimate
	if total == 0 {
		return Outputs{}, ErrZeroTotalCost
	}
	net := in.ExpectedResale - total
	return Outputs{
		TotalCost:      total,
		NetProfit:      net,
		ROIBasisPoints: net * 10_000 / total,
		BreakEvenDate:  in.ExpectedResaleDate,
	}, nil
}

// Percent renders basis points as a display percentage.
func Percent(bps int64) float64 {
	return float64(bps) / 100
}

package roi

import (
	"errors"
	"testing"
)

func TestCalculate(t *testing.T) {
	date := "2026-12-01"
	out, err := Calculate(Inputs{
		AcquisitionPrice:   10_000_000,
		Taxes:              500_000,
		LegalCosts:         200_000,
		RenovationEstimate: 2_000_000,
		ExpectedResale:     15_000_000,
		ExpectedResaleDate: &date,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.TotalCost != 12_700_000 {
		t.Fatalf("total cost = %d", out.TotalCost)
	}
	if out.NetProfit != 2_300_000 {
		t.Fatalf("net profit = %d", out.NetProfit)
	}
	if out.ROIBasisPoints <= 0 {
		t.Fatalf("roi bps = %d, want > 0", out.ROIBasisPoints)
	}
	if out.BreakEvenDate == nil || *out.BreakEvenDate != date {
		t.Fatalf("break even = %v, want %s", out.BreakEvenDate, date)
	}
}

func TestCalculateZeroCost(t *testing.T) {
	_, err := Calculate(Inputs{ExpectedResale: 100})
	if !errors.Is(err, ErrZeroTotalCost) {
		t.Fatalf("err = %v, want ErrZeroTotalCost", err)
	}
}

func TestCalculateNoDate(t *testing.T) {
	out, err := Calculate(Inputs{AcquisitionPrice: 100, ExpectedResale: 50})
	if err != nil {
		t.Fatal(err)
	}
	if out.BreakEvenDate != nil {
		t.Fatalf("break even = %v, want nil", out.BreakEvenDate)
	}
	if out.NetProfit != -50 {
		t.Fatalf("net profit = %d", out.NetProfit)
	}
}

func TestCalculateDeterministic(t *testing.T) {
	in := Inputs{AcquisitionPrice: 7_000, Taxes: 300, LegalCosts: 200, RenovationEstimate: 500, ExpectedResale: 9_000}
	a, err := Calculate(in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Calculate(in)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("outputs differ: %+v vs %+v", a, b)
	}
}

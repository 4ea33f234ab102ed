// Package docqa derives the CPO quality status for a processed document
// from the structured metrics the extraction pipeline reports. The
// pipeline itself (OCR, rasterization) is external; only its numbers
// enter here, so the verdict is reproducible from stored data.
package docqa

// Quality gates for scanned legal documents.
const (
	MinDPI           = 300
	MinOCRConfidence = 95.0
)

// CPO tri-state.
const (
	StatusGreen  = "green"
	StatusYellow = "yellow"
	StatusRed    = "red"
)

// Metrics is what the extraction pipeline measured for one document.
type Metrics struct {
	DPI           int     `json:"dpi"`
	OCRConfidence float64 `json:"ocr_confidence"`
}

// Result is the derived verdict.
type Result struct {
	Status         string `json:"cpo_status"`
	DPIApproved    bool   `json:"dpi_approved"`
	OCRApproved    bool   `json:"ocr_approved"`
	ReviewRequired bool   `json:"review_required"`
}

// Assess maps metrics to the CPO status: both gates passing is green,
// exactly one is yellow, none is red. Anything short of green requires
// manual review.
func Assess(m Metrics) Result {
	dpiOK := m.DPI >= MinDPI
	ocrOK := m.OCRConfidence >= MinOCRConfidence
	r := Result{DPIApproved: dpiOK, OCRApproved: ocrOK}
	switch {
	case dpiOK && ocrOK:
		r.Status = StatusGreen
	case dpiOK || ocrOK:
		r.Status = StatusYellow
		r.ReviewRequired = true
	default:
		r.Status = StatusRed
		r.ReviewRequired = true
	}
	return r
}

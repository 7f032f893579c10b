package scoring

import "image"

// #region outcome

// Outcome classifies one scored decode attempt.
type Outcome int

const (
	// NotDetected: the decoder failed outright.
	NotDetected Outcome = iota
	// Matched: format, text and declared metadata all equal the expectation.
	Matched
	// Misread: the decoder succeeded but produced the wrong format, text or metadata.
	Misread
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Misread:
		return "misread"
	default:
		return "not_detected"
	}
}

// #endregion outcome

// #region counters

// Counters are the running tallies for one declared rotation.
type Counters struct {
	Passed           int `json:"passed"`
	Misread          int `json:"misread"`
	TryHarderPassed  int `json:"try_harder_passed"`
	TryHarderMisread int `json:"try_harder_misread"`
}

// Add records an outcome for the given effort mode. NotDetected changes nothing.
func (c *Counters) Add(o Outcome, tryHarder bool) {
	switch {
	case o == Matched && tryHarder:
		c.TryHarderPassed++
	case o == Matched:
		c.Passed++
	case o == Misread && tryHarder:
		c.TryHarderMisread++
	case o == Misread:
		c.Misread++
	}
}

// NotDetected derives the plain-mode not-detected count for total images.
func (c Counters) NotDetected(total int) int {
	return total - c.Passed - c.Misread
}

// TryHarderNotDetected derives the try-harder not-detected count for total images.
func (c Counters) TryHarderNotDetected(total int) int {
	return total - c.TryHarderPassed - c.TryHarderMisread
}

// #endregion counters

// #region image

// Image is one fixture image with its pre-rendered rotation variants.
type Image struct {
	Path     string
	Variants map[float64]image.Image
}

// #endregion image

// #region attempt

// Attempt describes one scored decode, passed to Engine observers.
type Attempt struct {
	Image     string
	Rotation  float64
	TryHarder bool
	Outcome   Outcome
	Detail    string
}

// #endregion attempt

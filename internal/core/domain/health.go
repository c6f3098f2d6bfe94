package domain

import "fmt"

// DocumentHealth is an ordinal classification of a recovered document.
// Larger values are healthier.
type DocumentHealth int

const (
	HealthSeverelyDamaged DocumentHealth = iota
	HealthDamaged
	HealthPartiallyRecovered
	HealthHealthy
)

var healthNames = map[DocumentHealth]string{
	HealthSeverelyDamaged:    "severely_damaged",
	HealthDamaged:            "damaged",
	HealthPartiallyRecovered: "partially_recovered",
	HealthHealthy:            "healthy",
}

func (h DocumentHealth) String() string {
	if name, ok := healthNames[h]; ok {
		return name
	}
	return fmt.Sprintf("health(%d)", int(h))
}

// MarshalText encodes the health by name.
func (h DocumentHealth) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a health name.
func (h *DocumentHealth) UnmarshalText(text []byte) error {
	for health, name := range healthNames {
		if name == string(text) {
			*h = health
			return nil
		}
	}
	return fmt.Errorf("unknown document health %q", text)
}

// HealthFromScore maps a health score onto the ordinal scale.
func HealthFromScore(score float64) DocumentHealth {
	switch {
	case score >= 0.9:
		return HealthHealthy
	case score >= 0.7:
		return HealthPartiallyRecovered
	case score >= 0.4:
		return HealthDamaged
	default:
		return HealthSeverelyDamaged
	}
}

// WorstHealth returns the less healthy of a and b.
func WorstHealth(a, b DocumentHealth) DocumentHealth {
	if a < b {
		return a
	}
	return b
}

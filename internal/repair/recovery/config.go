package recovery

import (
	"fmt"
	"strings"
	"time"
)

// Level is the aggressiveness tier. Each level applies a superset of the
// strategies of the level below it.
type Level int

const (
	LevelConservative Level = iota
	LevelModerate
	LevelAggressive
	LevelExperimental
)

var levelNames = map[Level]string{
	LevelConservative: "conservative",
	LevelModerate:     "moderate",
	LevelAggressive:   "aggressive",
	LevelExperimental: "experimental",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Levels lists every level from least to most aggressive.
func Levels() []Level {
	return []Level{LevelConservative, LevelModerate, LevelAggressive, LevelExperimental}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return l, nil
		}
	}
	return LevelModerate, fmt.Errorf("unknown recovery level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML accepts the level name.
func (l *Level) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return l.UnmarshalText([]byte(s))
}

// Config controls a recovery run.
type Config struct {
	Level Level `yaml:"level"`
	// MaxErrors caps the error log. Older entries are dropped first.
	MaxErrors int `yaml:"max_errors"`
	// Timeout bounds a run. It is checked between strategies.
	Timeout time.Duration `yaml:"timeout"`

	SkipCorruptedObjects           bool `yaml:"skip_corrupted_objects"`
	AttemptStructureReconstruction bool `yaml:"attempt_structure_reconstruction"`
	UseHeuristicParsing            bool `yaml:"use_heuristic_parsing"`
	PreservePartialObjects         bool `yaml:"preserve_partial_objects"`
	EnableFuzzyMatching            bool `yaml:"enable_fuzzy_matching"`
}

// DefaultConfig returns the moderate configuration.
func DefaultConfig() Config {
	return Config{
		Level:                          LevelModerate,
		MaxErrors:                      1000,
		Timeout:                        60 * time.Second,
		SkipCorruptedObjects:           true,
		AttemptStructureReconstruction: true,
		UseHeuristicParsing:            true,
		PreservePartialObjects:         true,
		EnableFuzzyMatching:            true,
	}
}

package domain

import "fmt"

// Severity ranks recovery errors and corruption indicators.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
	SeverityFatal:    "fatal",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	for sev, name := range severityNames {
		if name == string(text) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// ErrorKind classifies where in the document a recovery error originated.
type ErrorKind string

const (
	ErrorKindParse         ErrorKind = "parse_error"
	ErrorKindStructural    ErrorKind = "structural_error"
	ErrorKindReference     ErrorKind = "reference_error"
	ErrorKindStream        ErrorKind = "stream_error"
	ErrorKindEncoding      ErrorKind = "encoding_error"
	ErrorKindIntegrity     ErrorKind = "integrity_error"
	ErrorKindUnknownFormat ErrorKind = "unknown_format"
)

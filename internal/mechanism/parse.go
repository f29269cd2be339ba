package mechanism

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError reports a mechanism that could not be read or decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mechanism %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes and validates a YAML mechanism.
func Parse(data []byte) (*Mechanism, error) {
	return parse("<bytes>", data)
}

// Load reads a YAML mechanism file.
func Load(path string) (*Mechanism, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return parse(path, data)
}

func parse(source string, data []byte) (*Mechanism, error) {
	m := &Mechanism{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	return m, nil
}

// Marshal encodes m as YAML.
func Marshal(m *Mechanism) ([]byte, error) {
	return yaml.Marshal(m)
}

// Resolve returns the preset called name, or loads name as a file.
func Resolve(name string) (*Mechanism, error) {
	if m, ok := Preset(name); ok {
		return m, nil
	}
	return Load(name)
}

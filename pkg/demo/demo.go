// Package demo embeds the orthopedic intake schema and a small set of patient
// records. The CLI falls back to them when no schema or provider is configured.
package demo

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

//go:embed intake.yaml
var schemaYAML []byte

//go:embed patients.yaml
var patientsYAML []byte

// SchemaSource returns the raw schema document.
func SchemaSource() []byte {
	return append([]byte(nil), schemaYAML...)
}

// Schema loads the embedded schema.
func Schema(opts ...schema.Option) (*schema.Model, error) {
	return schema.LoadBytes(schemaYAML, opts...)
}

// MustSchema is Schema for package-level initialisation and tests.
func MustSchema() *schema.Model {
	m, err := Schema()
	if err != nil {
		panic(err)
	}
	return m
}

// Patients returns the sample records keyed by date of birth.
func Patients() (map[string]domain.Record, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(patientsYAML, &raw); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	out := make(map[string]domain.Record, len(raw))
	for key, fields := range raw {
		out[key] = domain.Record(fields)
	}
	return out, nil
}

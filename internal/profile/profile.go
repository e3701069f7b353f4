// Package profile loads analysis profiles: YAML or JSON documents that
// override planner parameters for a run. Every profile is validated
// against an embedded JSON schema before it touches the planner.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/codescout-dev/codescout/pkg/engine"
)

// ErrInvalidProfile marks schema violations in a profile document.
var ErrInvalidProfile = errors.New("invalid analysis profile")

// Profile is a named set of planner overrides. Pointer fields
// distinguish "absent" from an explicit zero.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	ChunkSizeTarget  *int     `json:"chunkSizeTarget,omitempty" yaml:"chunkSizeTarget,omitempty"`
	BaseWeight       *float64 `json:"baseWeight,omitempty" yaml:"baseWeight,omitempty"`
	DependencyLimit  *int     `json:"dependencyLimit,omitempty" yaml:"dependencyLimit,omitempty"`
	MediumComplexity *float64 `json:"mediumComplexity,omitempty" yaml:"mediumComplexity,omitempty"`
	HighComplexity   *float64 `json:"highComplexity,omitempty" yaml:"highComplexity,omitempty"`

	// TypeMultipliers merge over the planner's table, extension by
	// extension. Pattern lists replace theirs wholesale.
	TypeMultipliers        map[string]float64 `json:"typeMultipliers,omitempty" yaml:"typeMultipliers,omitempty"`
	HighPriorityPatterns   []string           `json:"highPriorityPatterns,omitempty" yaml:"highPriorityPatterns,omitempty"`
	MediumPriorityPatterns []string           `json:"mediumPriorityPatterns,omitempty" yaml:"mediumPriorityPatterns,omitempty"`
}

// Load reads, validates and decodes the profile at path. The format
// follows the extension: .json is JSON, everything else is YAML.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	doc, err := decodeDocument(path, data)
	if err != nil {
		return nil, err
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var p Profile

	if isJSON(path) {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}

	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	return &p, nil
}

// Apply overlays the profile onto cfg and returns the result. cfg is
// not mutated.
func (p *Profile) Apply(cfg engine.PlannerConfig) engine.PlannerConfig {
	if p.ChunkSizeTarget != nil {
		cfg.ChunkSizeTarget = *p.ChunkSizeTarget
	}

	if p.BaseWeight != nil {
		cfg.BaseWeight = *p.BaseWeight
	}

	if p.DependencyLimit != nil {
		cfg.DependencyLimit = *p.DependencyLimit
	}

	if p.MediumComplexity != nil {
		cfg.MediumComplexity = *p.MediumComplexity
	}

	if p.HighComplexity != nil {
		cfg.HighComplexity = *p.HighComplexity
	}

	if len(p.TypeMultipliers) > 0 {
		merged := maps.Clone(cfg.TypeMultipliers)
		if merged == nil {
			merged = make(map[string]float64, len(p.TypeMultipliers))
		}

		maps.Copy(merged, p.TypeMultipliers)
		cfg.TypeMultipliers = merged
	}

	if len(p.HighPriorityPatterns) > 0 {
		cfg.HighPriorityPatterns = slices.Clone(p.HighPriorityPatterns)
	}

	if len(p.MediumPriorityPatterns) > 0 {
		cfg.MediumPriorityPatterns = slices.Clone(p.MediumPriorityPatterns)
	}

	return cfg
}

// decodeDocument parses data into a schema-checkable value.
func decodeDocument(path string, data []byte) (any, error) {
	var doc any

	if isJSON(path) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()

		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse profile: %w", err)
		}

		return doc, nil
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	return doc, nil
}

func validateDocument(doc any) error {
	schemaBytes, err := schemaFS.ReadFile("profile-schema.json")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate profile: %w", err)
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		issues = append(issues, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(issues, "; "))
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

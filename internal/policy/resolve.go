// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed default.yaml
var defaultPolicyYAML []byte

// ErrUnknownScenario is returned when the selected scenario has no overlay.
var ErrUnknownScenario = errors.New("unknown policy scenario")

// Options selects the layers Resolve merges over the embedded defaults.
type Options struct {
	// File is an optional YAML policy file merged over the defaults.
	File string

	// Scenario names an overlay under scenarios.<name>. Empty selects none.
	Scenario string
}

// bytesProvider feeds an in-memory YAML document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytesProvider does not support Read()")
}

// Resolve builds the immutable policy from the embedded defaults and the
// layers named in opts, then validates it.
func Resolve(opts Options) (*Policy, error) {
	k := koanf.New(".")

	if err := k.Load(bytesProvider(defaultPolicyYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default policy: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load policy file %s: %w", opts.File, err)
		}
	}

	if opts.Scenario != "" {
		path := "scenarios." + opts.Scenario
		if !k.Exists(path) {
			return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownScenario, opts.Scenario, Scenarios(k))
		}
		if err := k.Merge(k.Cut(path)); err != nil {
			return nil, fmt.Errorf("failed to apply scenario %q: %w", opts.Scenario, err)
		}
	}

	p := &Policy{}
	if err := k.Unmarshal("", p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	p.Scenario = opts.Scenario

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}

	loc, err := time.LoadLocation(p.Event.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load event timezone %q: %w", p.Event.Timezone, err)
	}
	p.location = loc

	return p, nil
}

// Default resolves the embedded policy with no overlays.
func Default() (*Policy, error) {
	return Resolve(Options{})
}

// Scenarios lists the overlay names present in k.
func Scenarios(k *koanf.Koanf) []string {
	names := k.MapKeys("scenarios")
	sort.Strings(names)
	return names
}

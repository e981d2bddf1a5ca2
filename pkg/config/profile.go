package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
)

// profileSchemaRange pins the profile document versions this build
// accepts.
const profileSchemaRange = "^1.0.0"

const profileSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["schema_version", "code", "rates"],
	"additionalProperties": false,
	"properties": {
		"schema_version": {"type": "string", "minLength": 1},
		"code": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"commission_sink": {"type": "string"},
		"reclaim_period_days": {"type": "integer", "minimum": 1},
		"assets": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"admission": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"rates": {
			"type": "object",
			"required": ["donation", "refund", "success"],
			"additionalProperties": false,
			"properties": {
				"donation": {"$ref": "#/$defs/rateTable"},
				"refund": {"$ref": "#/$defs/rate"},
				"success": {"$ref": "#/$defs/rateTable"}
			}
		},
		"toggles": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"repeat_refund_cycles": {"type": "boolean"},
				"refund_from_completed": {"type": "boolean"},
				"failed_sweep": {"type": "boolean"}
			}
		}
	},
	"$defs": {
		"rate": {"type": "integer", "minimum": 0, "maximum": 10000},
		"rateTable": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"startup": {"$ref": "#/$defs/rate"},
				"charity": {"$ref": "#/$defs/rate"}
			}
		}
	}
}`

// Profile is a shippable commission schedule, one per
// profile_<code>.yaml file.
type Profile struct {
	SchemaVersion     string   `yaml:"schema_version" json:"schema_version"`
	Code              string   `yaml:"code" json:"code"`
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	Sink              string   `yaml:"commission_sink,omitempty" json:"commission_sink,omitempty"`
	ReclaimPeriodDays int      `yaml:"reclaim_period_days,omitempty" json:"reclaim_period_days,omitempty"`
	Rates             Rates    `yaml:"rates" json:"rates"`
	Assets            []string `yaml:"assets,omitempty" json:"assets,omitempty"`
	Admission         []string `yaml:"admission,omitempty" json:"admission,omitempty"`
	Toggles           Toggles  `yaml:"toggles,omitempty" json:"toggles,omitempty"`
}

// Rates is the profile's basis-point schedule.
type Rates struct {
	Donation map[string]int64 `yaml:"donation" json:"donation"`
	Refund   int64            `yaml:"refund" json:"refund"`
	Success  map[string]int64 `yaml:"success" json:"success"`
}

// Toggles selects the documented behaviour variants. FailedSweep
// defaults to on when omitted.
type Toggles struct {
	RepeatRefundCycles  bool  `yaml:"repeat_refund_cycles,omitempty" json:"repeat_refund_cycles,omitempty"`
	RefundFromCompleted bool  `yaml:"refund_from_completed,omitempty" json:"refund_from_completed,omitempty"`
	FailedSweep         *bool `yaml:"failed_sweep,omitempty" json:"failed_sweep,omitempty"`
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledProfileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("profile.schema.json", strings.NewReader(profileSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("profile.schema.json")
	})
	return compiledSchema, schemaErr
}

// LoadProfile reads, schema-validates and version-gates the profile
// for a code from profilesDir.
func LoadProfile(profilesDir, code string) (*Profile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}
	return parseProfile(path, data)
}

// LoadProfiles loads every profile_*.yaml in profilesDir, keyed by
// profile code.
func LoadProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		p, err := parseProfile(path, data)
		if err != nil {
			return nil, err
		}
		profiles[p.Code] = p
	}
	return profiles, nil
}

func parseProfile(path string, data []byte) (*Profile, error) {
	// Validate the raw document, not the decoded struct, so unknown
	// keys and out-of-range rates are caught before they are dropped.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("normalize %s: %w", path, err)
	}
	schema, err := compiledProfileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("profile %s failed validation: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	version, err := semver.NewVersion(p.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("profile %s schema_version: %w", path, err)
	}
	supported, err := semver.NewConstraint(profileSchemaRange)
	if err != nil {
		return nil, err
	}
	if !supported.Check(version) {
		return nil, fmt.Errorf("profile %s schema_version %s outside supported range %s",
			path, p.SchemaVersion, profileSchemaRange)
	}
	return &p, nil
}

// Params translates the profile into custody seed parameters for the
// given owner.
func (p *Profile) Params(owner campaign.Principal) (Params, error) {
	prm := DefaultParams()
	prm.Owner = owner
	prm.Sink = campaign.Principal(p.Sink)
	if p.ReclaimPeriodDays > 0 {
		prm.ReclaimPeriod = time.Duration(p.ReclaimPeriodDays) * 24 * time.Hour
	}
	for name, bps := range p.Rates.Donation {
		t := campaign.Type(name)
		if !t.Valid() {
			return Params{}, fmt.Errorf("config: unknown campaign type %q in profile %s", name, p.Code)
		}
		prm.DonationRates[t] = commission.Rate(bps)
	}
	prm.RefundRate = commission.Rate(p.Rates.Refund)
	for name, bps := range p.Rates.Success {
		t := campaign.Type(name)
		if !t.Valid() {
			return Params{}, fmt.Errorf("config: unknown campaign type %q in profile %s", name, p.Code)
		}
		prm.SuccessRates[t] = commission.Rate(bps)
	}
	prm.Assets = append([]string(nil), p.Assets...)
	prm.RepeatRefundCycles = p.Toggles.RepeatRefundCycles
	prm.RefundFromCompleted = p.Toggles.RefundFromCompleted
	if p.Toggles.FailedSweep != nil {
		prm.FailedSweep = *p.Toggles.FailedSweep
	}
	return prm, nil
}

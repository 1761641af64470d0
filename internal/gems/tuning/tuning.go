// Package tuning loads the gem balance file (gems.yaml).
package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"gemcraft.ai/internal/gems/model"
)

//go:embed gems.schema.json
var schemaJSON string

// Ability names used as keys under cooldowns and durations.
const (
	Primary      = "primary"
	DoubleJump   = "double_jump"
	PassiveInvis = "passive_invis"
	PassiveCycle = "passive_cycle"
	PassiveSpeed = "passive_speed"
)

type Config struct {
	TickRateHz        int    `yaml:"tick_rate_hz"`
	EffectToleranceMs int    `yaml:"effect_tolerance_ms"`
	ReconcilePolicy   string `yaml:"reconcile_policy"`
	EquipSlot         int    `yaml:"equip_slot"`

	Enabled   map[string]bool           `yaml:"enabled"`
	Cooldowns map[string]map[string]int `yaml:"cooldowns"`
	Durations map[string]map[string]int `yaml:"durations"`

	Astra    Astra    `yaml:"astra"`
	Fire     Fire     `yaml:"fire"`
	Ice      Ice      `yaml:"ice"`
	Invis    Invis    `yaml:"invis"`
	Puff     Puff     `yaml:"puff"`
	Speed    Speed    `yaml:"speed"`
	Strength Strength `yaml:"strength"`
}

type Astra struct {
	BeamRange  float64 `yaml:"beam_range"`
	BeamWidth  float64 `yaml:"beam_width"`
	BeamDamage float64 `yaml:"beam_damage"`
}

type Fire struct {
	IgniteChancePct   int     `yaml:"ignite_chance_pct"`
	IgniteTicks       int     `yaml:"ignite_ticks"`
	AuraRadius        float64 `yaml:"aura_radius"`
	AuraIntervalTicks int     `yaml:"aura_interval_ticks"`
	DrainWater        bool    `yaml:"drain_water"`
}

type Ice struct {
	ContactSpeedAmplifier int     `yaml:"contact_speed_amplifier"`
	CageRadius            float64 `yaml:"cage_radius"`
	CageBand              float64 `yaml:"cage_band"`
	CageIntervalTicks     int     `yaml:"cage_interval_ticks"`
	SlowAmplifier         int     `yaml:"slow_amplifier"`
	SlowTicks             int     `yaml:"slow_ticks"`
}

type Invis struct {
	SpeedAmplifier int `yaml:"speed_amplifier"`
}

type Puff struct {
	NegateChancePct int     `yaml:"negate_chance_pct"`
	DashSpeed       float64 `yaml:"dash_speed"`
	DashLift        float64 `yaml:"dash_lift"`
	JumpLift        float64 `yaml:"jump_lift"`
}

type Speed struct {
	SpeedAmplifier int `yaml:"speed_amplifier"`
	HasteAmplifier int `yaml:"haste_amplifier"`
	BoostAmplifier int `yaml:"boost_amplifier"`
}

type Strength struct {
	Amplifier       int     `yaml:"amplifier"`
	CritMultiplier  float64 `yaml:"crit_multiplier"`
	DoubleChancePct int     `yaml:"double_chance_pct"`
}

func Defaults() Config {
	return Config{
		TickRateHz:        20,
		EffectToleranceMs: 1000,
		ReconcilePolicy:   "earliest_acquired",
		EquipSlot:         40,
		Enabled:           map[string]bool{},
		Cooldowns: map[string]map[string]int{
			"astra":    {Primary: 30},
			"fire":     {Primary: 45},
			"ice":      {Primary: 60},
			"invis":    {Primary: 45},
			"puff":     {Primary: 20, DoubleJump: 5},
			"speed":    {Primary: 30},
			"strength": {Primary: 60},
		},
		Durations: map[string]map[string]int{
			"astra":    {PassiveInvis: 5, PassiveCycle: 5},
			"fire":     {Primary: 15},
			"ice":      {Primary: 20, PassiveSpeed: 3},
			"invis":    {Primary: 15},
			"speed":    {Primary: 15},
			"strength": {Primary: 20},
		},
		Astra:    Astra{BeamRange: 5, BeamWidth: 1, BeamDamage: 7},
		Fire:     Fire{IgniteChancePct: 5, IgniteTicks: 60, AuraRadius: 3, AuraIntervalTicks: 5, DrainWater: true},
		Ice:      Ice{ContactSpeedAmplifier: 3, CageRadius: 4, CageBand: 0.5, CageIntervalTicks: 20, SlowAmplifier: 1, SlowTicks: 40},
		Invis:    Invis{SpeedAmplifier: 1},
		Puff:     Puff{NegateChancePct: 5, DashSpeed: 2.5, DashLift: 0.3, JumpLift: 0.6},
		Speed:    Speed{SpeedAmplifier: 0, HasteAmplifier: 2, BoostAmplifier: 4},
		Strength: Strength{Amplifier: 1, CritMultiplier: 1.5, DoubleChancePct: 1},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(raw)
}

// Parse decodes a gems.yaml document over the defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Defaults()
	if err := CheckSchema(raw); err != nil {
		return cfg, fmt.Errorf("gems.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("gems.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("gems.yaml: %w", err)
	}
	return cfg, nil
}

const schemaURL = "https://gemcraft.ai/schemas/gems.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// CheckSchema validates the shape of a gems.yaml document.
func CheckSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("not representable as json: %w", err)
	}
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return err
	}
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return s.Validate(v)
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.EffectToleranceMs <= 0 {
		c.EffectToleranceMs = 1000
	}
	c.ReconcilePolicy = strings.ToLower(strings.TrimSpace(c.ReconcilePolicy))
	if c.ReconcilePolicy == "" {
		c.ReconcilePolicy = "earliest_acquired"
	}
	if c.Enabled == nil {
		c.Enabled = map[string]bool{}
	}
	if c.Cooldowns == nil {
		c.Cooldowns = map[string]map[string]int{}
	}
	if c.Durations == nil {
		c.Durations = map[string]map[string]int{}
	}
	if c.Fire.AuraIntervalTicks <= 0 {
		c.Fire.AuraIntervalTicks = 5
	}
	if c.Ice.CageIntervalTicks <= 0 {
		c.Ice.CageIntervalTicks = 20
	}
}

func (c Config) Validate() error {
	if c.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be <= 1000")
	}
	switch c.ReconcilePolicy {
	case "earliest_acquired", "first_in_inventory":
	default:
		return fmt.Errorf("reconcile_policy %q must be earliest_acquired or first_in_inventory", c.ReconcilePolicy)
	}
	if c.EquipSlot < 0 || c.EquipSlot > 40 {
		return fmt.Errorf("equip_slot must be in [0, 40]")
	}
	for _, section := range []struct {
		name string
		m    map[string]map[string]int
	}{{"cooldowns", c.Cooldowns}, {"durations", c.Durations}} {
		for g, abilities := range section.m {
			if _, err := model.ParseGemType(g); err != nil {
				return fmt.Errorf("%s: %w", section.name, err)
			}
			for a, v := range abilities {
				if v < 0 {
					return fmt.Errorf("%s.%s.%s must be >= 0", section.name, g, a)
				}
			}
		}
	}
	for g := range c.Enabled {
		if _, err := model.ParseGemType(g); err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
	}
	for _, p := range []struct {
		name string
		v    int
	}{
		{"fire.ignite_chance_pct", c.Fire.IgniteChancePct},
		{"puff.negate_chance_pct", c.Puff.NegateChancePct},
		{"strength.double_chance_pct", c.Strength.DoubleChancePct},
	} {
		if p.v < 0 || p.v > 100 {
			return fmt.Errorf("%s must be in [0, 100]", p.name)
		}
	}
	if c.Ice.CageRadius <= 0 || c.Ice.CageBand < 0 {
		return fmt.Errorf("ice.cage_radius must be > 0 and ice.cage_band >= 0")
	}
	if c.Fire.AuraRadius <= 0 {
		return fmt.Errorf("fire.aura_radius must be > 0")
	}
	if c.Astra.BeamRange <= 0 || c.Astra.BeamWidth <= 0 {
		return fmt.Errorf("astra.beam_range and astra.beam_width must be > 0")
	}
	return nil
}

// Cooldown returns the cooldown of ability in seconds, 0 if unset.
func (c Config) Cooldown(g model.GemType, ability string) int {
	return c.Cooldowns[string(g)][ability]
}

// Duration returns the duration of ability in seconds, 0 if unset.
func (c Config) Duration(g model.GemType, ability string) int {
	return c.Durations[string(g)][ability]
}

// GemEnabled reports whether g is enabled. Gems absent from the enabled map are enabled.
func (c Config) GemEnabled(g model.GemType) bool {
	on, ok := c.Enabled[string(g)]
	return !ok || on
}

// Tick returns the wall duration of one tick.
func (c Config) Tick() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

func (c Config) EffectTolerance() time.Duration {
	return time.Duration(c.EffectToleranceMs) * time.Millisecond
}

// Ticks converts seconds to ticks.
func (c Config) Ticks(seconds int) int { return seconds * c.TickRateHz }

// Clone returns a deep copy, so a reloaded or toggled config never aliases the live maps.
func (c Config) Clone() Config {
	out := c
	out.Enabled = make(map[string]bool, len(c.Enabled))
	for k, v := range c.Enabled {
		out.Enabled[k] = v
	}
	out.Cooldowns = cloneNested(c.Cooldowns)
	out.Durations = cloneNested(c.Durations)
	return out
}

func cloneNested(m map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(m))
	for k, inner := range m {
		cp := make(map[string]int, len(inner))
		for ik, v := range inner {
			cp[ik] = v
		}
		out[k] = cp
	}
	return out
}

// Marshal renders c as yaml.
func (c Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }

// SaveEnabled writes enabled.<gem> into the file at path, keeping every other key and
// comment. A missing file is created with only the enabled map. The result must still load.
func SaveEnabled(path string, g model.GemType, on bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("no config file to save into")
	}
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var doc yaml.Node
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("gems.yaml: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("gems.yaml: top level is not a mapping")
	}
	enabled := mappingValue(root, "enabled")
	if enabled == nil {
		enabled = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "enabled"}, enabled)
	}
	if enabled.Kind != yaml.MappingNode {
		return fmt.Errorf("gems.yaml: enabled is not a mapping")
	}
	val := fmt.Sprintf("%t", on)
	if v := mappingValue(enabled, string(g)); v != nil {
		*v = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: val}
	} else {
		enabled.Content = append(enabled.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(g)},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: val})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if _, err := Parse(buf.Bytes()); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Package ruleset loads and watches the declarative ruleset file.
// Rulesets are keyed per (expert instance, use case); edits to the file
// are picked up without a restart.
package ruleset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/rules"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// fileSchema rejects malformed ruleset files before any rule compiles.
const fileSchema = `{
  "type": "object",
  "required": ["rulesets"],
  "properties": {
    "rulesets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["expert_instance_id", "use_case", "rules"],
        "properties": {
          "expert_instance_id": {"type": "integer", "minimum": 1},
          "use_case": {"enum": ["ENTER_MARKET", "OPEN_POSITIONS"]},
          "rules": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["actions"],
              "properties": {
                "name": {"type": "string"},
                "conditions": {"type": "array"},
                "actions": {"type": "array", "minItems": 1}
              }
            }
          }
        }
      }
    }
  }
}`

// entryConfig is one ruleset binding in the file.
type entryConfig struct {
	ExpertInstanceID int64              `mapstructure:"expert_instance_id" yaml:"expert_instance_id"`
	UseCase          string             `mapstructure:"use_case" yaml:"use_case"`
	Rules            []rules.RuleConfig `mapstructure:"rules" yaml:"rules"`
}

type fileConfig struct {
	Rulesets []entryConfig `mapstructure:"rulesets" yaml:"rulesets"`
}

type key struct {
	Expert  int64
	UseCase types.UseCase
}

// Snapshot is an immutable view of the compiled rulesets.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	rulesets map[key]*rules.Ruleset
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry watches the ruleset file and serves compiled rulesets. It
// implements the lifecycle manager's RulesetProvider.
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads the file, compiles every ruleset and starts
// watching for changes. A file that fails validation on reload keeps
// the previous snapshot serving.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ruleset registry requires a file path")
	}
	schema, err := compileFileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile ruleset schema: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read ruleset file: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("ruleset reload failed, keeping previous snapshot: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Ruleset returns the compiled ruleset for an (expert, use case) pair.
func (r *Registry) Ruleset(expertID int64, useCase types.UseCase) (*rules.Ruleset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.snapshot.rulesets[key{Expert: expertID, UseCase: useCase}]
	return rs, ok
}

// Snapshot returns the current compiled set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// ExpertIDs lists the experts with at least one configured ruleset,
// ascending.
func (r *Registry) ExpertIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int64]struct{})
	out := make([]int64, 0, len(r.snapshot.rulesets))
	for k := range r.snapshot.rulesets {
		if _, ok := seen[k.Expert]; ok {
			continue
		}
		seen[k.Expert] = struct{}{}
		out = append(out, k.Expert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnChange registers a reload listener.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) reload() error {
	cfg, err := r.readFile()
	if err != nil {
		return err
	}
	compiled := make(map[key]*rules.Ruleset, len(cfg.Rulesets))
	for _, entry := range cfg.Rulesets {
		uc := types.UseCase(strings.ToUpper(strings.TrimSpace(entry.UseCase)))
		k := key{Expert: entry.ExpertInstanceID, UseCase: uc}
		id := fmt.Sprintf("expert-%d-%s", entry.ExpertInstanceID, strings.ToLower(string(uc)))
		rs, err := rules.BuildRuleset(id, entry.Rules)
		if err != nil {
			return fmt.Errorf("compile %s: %w", id, err)
		}
		if _, dup := compiled[k]; dup {
			return fmt.Errorf("duplicate ruleset for expert %d use case %s", entry.ExpertInstanceID, uc)
		}
		compiled[k] = rs
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		rulesets: compiled,
	}
	r.mu.Unlock()
	logger.Infof("ruleset registry loaded %d rulesets from %s", len(compiled), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("ruleset listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

// readFile parses and schema-validates the ruleset file.
func (r *Registry) readFile() (fileConfig, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read ruleset file: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fileConfig{}, fmt.Errorf("parse ruleset file: %w", err)
	}
	if err := r.schema.Validate(normalizeForSchema(doc)); err != nil {
		return fileConfig{}, fmt.Errorf("validate ruleset file: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decode ruleset file: %w", err)
	}
	return cfg, nil
}

func compileFileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rulesets.json", strings.NewReader(fileSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("rulesets.json")
}

// normalizeForSchema converts yaml-decoded values into the shapes the
// json schema validator expects.
func normalizeForSchema(doc any) any {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}

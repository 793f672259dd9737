package repos

import (
	"errors"
	"fmt"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedDoc is a YAML document describing settings, presets, mappings and
// host content to import in one go.
type SeedDoc struct {
	Settings       *SettingsPatch `yaml:"settings"`
	DefaultPresets bool           `yaml:"default_presets"`
	Presets        []SeedPreset   `yaml:"presets"`
	Mappings       []SeedMapping  `yaml:"mappings"`
	Posts          []SeedPost     `yaml:"posts"`
}

// SeedPreset is a preset keyed by name. An existing preset with the same
// name gets its variant replaced.
type SeedPreset struct {
	Name    string `yaml:"name"`
	Variant string `yaml:"variant"`
}

// SeedMapping is a mapping that may reference its preset by name.
// Unset fields take the usual mapping defaults.
type SeedMapping struct {
	models.Mapping `yaml:",inline"`
	Preset         string `yaml:"preset"`
}

// UnmarshalYAML starts from the mapping defaults so partial documents
// keep them.
func (m *SeedMapping) UnmarshalYAML(node *yaml.Node) error {
	type plain SeedMapping

	v := plain{Mapping: models.DefaultMapping()}
	if err := node.Decode(&v); err != nil {
		return err
	}

	*m = SeedMapping(v)

	return nil
}

// SeedPost is a host post with its meta and custom fields.
type SeedPost struct {
	models.Post `yaml:",inline"`
	Meta        map[string]string `yaml:"meta"`
	Fields      map[string]any    `yaml:"fields"`
}

// PostWriter is the part of the host store seeding writes to.
type PostWriter interface {
	PutPost(p models.Post) error
	SetMeta(objectID int64, key, value string) error
	SetField(objectID int64, name string, value any) error
}

// SeedResult counts what an import wrote.
type SeedResult struct {
	Presets  int `json:"presets"`
	Mappings int `json:"mappings"`
	Posts    int `json:"posts"`
}

// Seeder applies seed documents.
type Seeder struct {
	Settings *SettingsRepo
	Presets  *PresetsRepo
	Mappings *MappingsRepo
	Posts    PostWriter
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*SeedDoc, error) {
	var doc SeedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing seed document: %w", err)
	}

	return &doc, nil
}

// Apply writes doc in dependency order: settings, presets, mappings,
// then posts. It stops at the first error.
func (s *Seeder) Apply(doc *SeedDoc) (SeedResult, error) {
	var res SeedResult

	if doc.Settings != nil {
		if _, err := s.Settings.Update(*doc.Settings); err != nil {
			return res, fmt.Errorf("seeding settings: %w", err)
		}
	}

	if doc.DefaultPresets {
		if _, err := s.Presets.SeedDefaults(); err != nil {
			return res, fmt.Errorf("seeding default presets: %w", err)
		}
	}

	for _, sp := range doc.Presets {
		if err := s.upsertPreset(sp); err != nil {
			return res, fmt.Errorf("seeding preset %q: %w", sp.Name, err)
		}

		res.Presets++
	}

	for _, sm := range doc.Mappings {
		if err := s.upsertMapping(sm); err != nil {
			return res, fmt.Errorf("seeding mapping for %q: %w", sm.PostType, err)
		}

		res.Mappings++
	}

	for _, sp := range doc.Posts {
		if err := s.writePost(sp); err != nil {
			return res, fmt.Errorf("seeding post %d: %w", sp.ID, err)
		}

		res.Posts++
	}

	return res, nil
}

func (s *Seeder) upsertPreset(sp SeedPreset) error {
	existing, err := s.Presets.FindByName(sp.Name)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = s.Presets.Create(sp.Name, sp.Variant)
		return err
	}

	_, err = s.Presets.Update(existing.ID, PresetPatch{Variant: &sp.Variant})

	return err
}

func (s *Seeder) upsertMapping(sm SeedMapping) error {
	m := sm.Mapping

	if sm.Preset != "" {
		p, err := s.Presets.FindByName(sm.Preset)
		if err != nil {
			return err
		}

		if p == nil {
			return fmt.Errorf("%w: %s", cfierrors.ErrPresetNotFound, sm.Preset)
		}

		m.PresetID = p.ID
	}

	if m.ID != "" {
		_, err := s.Mappings.Update(m.ID, m)
		if err == nil || !errors.Is(err, cfierrors.ErrMappingNotFound) {
			return err
		}
	}

	_, err := s.Mappings.Create(m)

	return err
}

func (s *Seeder) writePost(sp SeedPost) error {
	if err := s.Posts.PutPost(sp.Post); err != nil {
		return err
	}

	for k, v := range sp.Meta {
		if err := s.Posts.SetMeta(sp.ID, k, v); err != nil {
			return err
		}
	}

	for k, v := range sp.Fields {
		if err := s.Posts.SetField(sp.ID, k, v); err != nil {
			return err
		}
	}

	return nil
}

package repos

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"golang.org/x/text/cases"
)

// variantPattern is the allow-list for variant strings. Variants are
// inserted into delivery URLs unescaped.
var variantPattern = regexp.MustCompile(`^[a-zA-Z0-9=,._:-]+$`)

// foldName case-folds a preset name. Casers are stateful, so each call
// gets its own.
func foldName(s string) string {
	return cases.Fold().String(s)
}

// PresetPatch updates selected preset fields.
type PresetPatch struct {
	Name    *string
	Variant *string
}

// PresetsRepo stores delivery presets as one ordered list.
type PresetsRepo struct {
	mu    sync.Mutex
	store OptionStore
	now   func() time.Time
}

// NewPresetsRepo creates a presets repository.
func NewPresetsRepo(store OptionStore) *PresetsRepo {
	return &PresetsRepo{store: store, now: time.Now}
}

// All returns every preset in creation order.
func (r *PresetsRepo) All() ([]models.Preset, error) {
	var all []models.Preset
	if _, err := r.store.GetOption(OptionPresets, &all); err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}

	return all, nil
}

// Find returns the preset with the given ID, or nil if there is none.
func (r *PresetsRepo) Find(id string) (*models.Preset, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}

	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}

	return nil, nil
}

// FindByName looks a preset up by name, ignoring case.
func (r *PresetsRepo) FindByName(name string) (*models.Preset, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}

	if i := indexByName(all, name); i >= 0 {
		return &all[i], nil
	}

	return nil, nil
}

// Create validates and stores a new preset.
func (r *PresetsRepo) Create(name, variant string) (models.Preset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := models.Preset{
		ID:      NewPresetID(),
		Name:    strings.TrimSpace(name),
		Variant: strings.TrimSpace(variant),
	}

	if err := ValidatePreset(p); err != nil {
		return p, err
	}

	all, err := r.All()
	if err != nil {
		return p, err
	}

	if indexByName(all, p.Name) >= 0 {
		return p, fmt.Errorf("%w: %s", cfierrors.ErrDuplicatePreset, p.Name)
	}

	p.UpdatedAt = r.now().Unix()

	return p, r.save(append(all, p))
}

// Update changes a preset's name or variant.
func (r *PresetsRepo) Update(id string, patch PresetPatch) (models.Preset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All()
	if err != nil {
		return models.Preset{}, err
	}

	i := slices.IndexFunc(all, func(p models.Preset) bool { return p.ID == id })
	if i < 0 {
		return models.Preset{}, fmt.Errorf("%w: %s", cfierrors.ErrPresetNotFound, id)
	}

	p := all[i]

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if foldName(name) != foldName(p.Name) && indexByName(all, name) >= 0 {
			return p, fmt.Errorf("%w: %s", cfierrors.ErrDuplicatePreset, name)
		}

		p.Name = name
	}

	if patch.Variant != nil {
		p.Variant = strings.TrimSpace(*patch.Variant)
	}

	if err := ValidatePreset(p); err != nil {
		return p, err
	}

	p.UpdatedAt = r.now().Unix()
	all[i] = p

	return p, r.save(all)
}

// Delete removes a preset.
func (r *PresetsRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(all, func(p models.Preset) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", cfierrors.ErrPresetNotFound, id)
	}

	return r.save(slices.Delete(all, i, i+1))
}

// SeedDefaults stores the recommended presets when none exist yet. It
// reports whether anything was written.
func (r *PresetsRepo) SeedDefaults() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All()
	if err != nil || len(all) > 0 {
		return false, err
	}

	now := r.now().Unix()
	for _, p := range models.RecommendedPresets() {
		p.ID = NewPresetID()
		p.UpdatedAt = now
		all = append(all, p)
	}

	return true, r.save(all)
}

func (r *PresetsRepo) save(all []models.Preset) error {
	if err := r.store.SetOption(OptionPresets, all); err != nil {
		return fmt.Errorf("writing presets: %w", err)
	}

	return nil
}

func indexByName(all []models.Preset, name string) int {
	want := foldName(name)

	return slices.IndexFunc(all, func(p models.Preset) bool { return foldName(p.Name) == want })
}

// ValidatePreset checks name and variant.
func ValidatePreset(p models.Preset) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", cfierrors.ErrInvalidPreset)
	case p.Variant == "":
		return fmt.Errorf("%w: variant string is required", cfierrors.ErrInvalidPreset)
	case !variantPattern.MatchString(p.Variant):
		return fmt.Errorf("%w: variant %q contains disallowed characters", cfierrors.ErrInvalidPreset, p.Variant)
	}

	return nil
}

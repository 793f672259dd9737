package repos

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// MappingsRepo stores mappings as one ordered list.
type MappingsRepo struct {
	mu    sync.Mutex
	store OptionStore
	now   func() time.Time
}

// NewMappingsRepo creates a mappings repository.
func NewMappingsRepo(store OptionStore) *MappingsRepo {
	return &MappingsRepo{store: store, now: time.Now}
}

// All returns every mapping in creation order.
func (r *MappingsRepo) All() ([]models.Mapping, error) {
	var all []models.Mapping
	if _, err := r.store.GetOption(OptionMappings, &all); err != nil {
		return nil, fmt.Errorf("reading mappings: %w", err)
	}

	return all, nil
}

// Find returns the mapping with the given ID or ErrMappingNotFound.
func (r *MappingsRepo) Find(id string) (models.Mapping, error) {
	all, err := r.All()
	if err != nil {
		return models.Mapping{}, err
	}

	for _, m := range all {
		if m.ID == id {
			return m, nil
		}
	}

	return models.Mapping{}, fmt.Errorf("%w: %s", cfierrors.ErrMappingNotFound, id)
}

// ForPostType returns the mappings configured for a post type.
func (r *MappingsRepo) ForPostType(postType string) ([]models.Mapping, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}

	var out []models.Mapping

	for _, m := range all {
		if m.PostType == postType {
			out = append(out, m)
		}
	}

	return out, nil
}

// Create validates and stores a new mapping. m.ID is kept when it is a
// well-formed, unused mapping ID; otherwise a new one is assigned.
func (r *MappingsRepo) Create(m models.Mapping) (models.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m = NormalizeMapping(m)
	if err := ValidateMapping(m); err != nil {
		return m, err
	}

	all, err := r.All()
	if err != nil {
		return m, err
	}

	if !ValidMappingID(m.ID) || slices.ContainsFunc(all, func(x models.Mapping) bool { return x.ID == m.ID }) {
		m.ID = NewMappingID()
	}

	m.UpdatedAt = r.now().Unix()
	all = append(all, m)

	return m, r.save(all)
}

// Update replaces the mapping with the given ID.
func (r *MappingsRepo) Update(id string, m models.Mapping) (models.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All()
	if err != nil {
		return m, err
	}

	i := slices.IndexFunc(all, func(x models.Mapping) bool { return x.ID == id })
	if i < 0 {
		return m, fmt.Errorf("%w: %s", cfierrors.ErrMappingNotFound, id)
	}

	m = NormalizeMapping(m)
	if err := ValidateMapping(m); err != nil {
		return m, err
	}

	m.ID = id
	m.UpdatedAt = r.now().Unix()
	all[i] = m

	return m, r.save(all)
}

// Delete removes a mapping.
func (r *MappingsRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(all, func(x models.Mapping) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", cfierrors.ErrMappingNotFound, id)
	}

	return r.save(slices.Delete(all, i, i+1))
}

func (r *MappingsRepo) save(all []models.Mapping) error {
	if err := r.store.SetOption(OptionMappings, all); err != nil {
		return fmt.Errorf("writing mappings: %w", err)
	}

	return nil
}

// NormalizeMapping trims names and coerces the status filter.
func NormalizeMapping(m models.Mapping) models.Mapping {
	m.PostType = strings.TrimSpace(m.PostType)
	m.Source.Type = strings.TrimSpace(m.Source.Type)
	m.Source.Key = strings.TrimSpace(m.Source.Key)
	m.Target.URLMeta = strings.TrimSpace(m.Target.URLMeta)
	m.Target.IDMeta = strings.TrimSpace(m.Target.IDMeta)
	m.Target.SigMeta = strings.TrimSpace(m.Target.SigMeta)

	if m.Status != models.StatusPublish {
		m.Status = models.StatusAny
	}

	return m
}

// ValidateMapping checks the invariants every stored mapping holds.
func ValidateMapping(m models.Mapping) error {
	switch {
	case m.PostType == "":
		return fmt.Errorf("%w: post type is required", cfierrors.ErrInvalidMapping)
	case !slices.Contains(models.SourceTypes, m.Source.Type):
		return fmt.Errorf("%w: invalid source type %q", cfierrors.ErrInvalidMapping, m.Source.Type)
	case m.Source.RequiresKey() && m.Source.Key == "":
		return fmt.Errorf("%w: source key is required for %s", cfierrors.ErrInvalidMapping, m.Source.Type)
	case m.Target.URLMeta == "":
		return fmt.Errorf("%w: target url_meta is required", cfierrors.ErrInvalidMapping)
	}

	return nil
}

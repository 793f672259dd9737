package models

// DefaultVariant is used whenever a mapping has no preset or the preset
// has no variant string.
const DefaultVariant = "public"

// Preset is a named delivery variant descriptor.
type Preset struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Variant   string `json:"variant" yaml:"variant"`
	UpdatedAt int64  `json:"updated_at,omitempty" yaml:"-"`
}

// VariantOrDefault returns the preset's variant, or "public" when p is
// nil or has no variant.
func (p *Preset) VariantOrDefault() string {
	if p == nil || p.Variant == "" {
		return DefaultVariant
	}

	return p.Variant
}

// RecommendedPresets is the core set seeded into an empty store.
func RecommendedPresets() []Preset {
	return []Preset{
		{Name: "public", Variant: "public"},
		{Name: "og_1200x630", Variant: "w=1200,h=630,fit=cover,quality=85,f=auto"},
		{Name: "square_800", Variant: "w=800,h=800,fit=cover,quality=85,f=auto"},
		{Name: "thumb_400x300", Variant: "w=400,h=300,fit=cover,quality=80,f=auto"},
		{Name: "hero_1600x900", Variant: "w=1600,h=900,fit=cover,quality=85,f=auto"},
		{Name: "mobile_600w_2x", Variant: "w=600,dpr=2,quality=85,f=auto"},
		{Name: "square_smartcrop", Variant: "w=800,h=800,fit=cover,gravity=auto,quality=85,f=auto"},
	}
}

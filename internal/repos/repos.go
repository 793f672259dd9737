// Package repos stores the plugin's settings, mappings, presets and log
// ring buffer as named option documents.
package repos

// Option names.
const (
	OptionSettings = "cfi_settings"
	OptionAPIToken = "cfi_api_token"
	OptionMappings = "cfi_mappings"
	OptionPresets  = "cfi_presets"
	OptionLogs     = "cfi_logs"
)

// OptionStore persists JSON option documents by name.
type OptionStore interface {
	GetOption(name string, v any) (bool, error)
	SetOption(name string, v any) error
	DeleteOption(name string) error
}

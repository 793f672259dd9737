package models

// Settings are the plugin-wide options. APIToken is held decrypted in
// memory only; it is never logged or serialized into the settings
// document.
type Settings struct {
	AccountID   string `json:"account_id" yaml:"account_id"`
	AccountHash string `json:"account_hash" yaml:"account_hash"`
	APIToken    string `json:"-" yaml:"api_token"`
	Debug       bool   `json:"debug" yaml:"debug"`
	UseQueue    bool   `json:"use_queue" yaml:"use_queue"`
	LogsMax     int    `json:"logs_max" yaml:"logs_max"`
}

// DefaultSettings returns settings for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		UseQueue: true,
		LogsMax:  200,
	}
}

// HasCredentials reports whether enough is configured to call the API.
func (s Settings) HasCredentials() bool {
	return s.AccountID != "" && s.APIToken != ""
}

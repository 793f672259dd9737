package repos

import (
	"errors"
	"fmt"
	"sync"

	"github.com/investblog/cloudflare-images-sync/internal/models"
)

const (
	minLogsMax = 50
	maxLogsMax = 1000
)

var errNoCipher = errors.New("secret key not configured, cannot store API token")

// SettingsPatch updates selected settings. Nil fields are left alone.
// An empty APIToken removes the stored token.
type SettingsPatch struct {
	AccountID   *string `yaml:"account_id"`
	AccountHash *string `yaml:"account_hash"`
	APIToken    *string `yaml:"api_token"`
	Debug       *bool   `yaml:"debug"`
	UseQueue    *bool   `yaml:"use_queue"`
	LogsMax     *int    `yaml:"logs_max"`
}

// SettingsRepo reads and writes the settings document. The API token
// lives in its own option, encrypted.
type SettingsRepo struct {
	mu     sync.Mutex
	store  OptionStore
	cipher *TokenCipher
}

// NewSettingsRepo creates a settings repository. cipher may be nil when
// no secret is configured; the token then cannot be stored or read.
func NewSettingsRepo(store OptionStore, cipher *TokenCipher) *SettingsRepo {
	return &SettingsRepo{store: store, cipher: cipher}
}

// Get returns the normalized settings with the token decrypted. A token
// that cannot be decrypted (for example after the secret changed) reads
// as empty.
func (r *SettingsRepo) Get() (models.Settings, error) {
	s := models.DefaultSettings()

	if _, err := r.store.GetOption(OptionSettings, &s); err != nil {
		return s, fmt.Errorf("reading settings: %w", err)
	}

	s.LogsMax = clamp(s.LogsMax, minLogsMax, maxLogsMax)

	if r.cipher == nil {
		return s, nil
	}

	var enc string

	found, err := r.store.GetOption(OptionAPIToken, &enc)
	if err != nil {
		return s, fmt.Errorf("reading api token: %w", err)
	}

	if found && enc != "" {
		if tok, err := r.cipher.Decrypt(enc); err == nil {
			s.APIToken = tok
		}
	}

	return s, nil
}

// Update applies a patch and returns the resulting settings.
func (r *SettingsRepo) Update(p SettingsPatch) (models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.APIToken != nil {
		if err := r.storeToken(*p.APIToken); err != nil {
			return models.Settings{}, err
		}
	}

	s, err := r.Get()
	if err != nil {
		return s, err
	}

	if p.AccountID != nil {
		s.AccountID = *p.AccountID
	}

	if p.AccountHash != nil {
		s.AccountHash = *p.AccountHash
	}

	if p.Debug != nil {
		s.Debug = *p.Debug
	}

	if p.UseQueue != nil {
		s.UseQueue = *p.UseQueue
	}

	if p.LogsMax != nil {
		s.LogsMax = clamp(*p.LogsMax, minLogsMax, maxLogsMax)
	}

	if err := r.store.SetOption(OptionSettings, s); err != nil {
		return s, fmt.Errorf("writing settings: %w", err)
	}

	return s, nil
}

func (r *SettingsRepo) storeToken(token string) error {
	if token == "" {
		if err := r.store.DeleteOption(OptionAPIToken); err != nil {
			return fmt.Errorf("deleting api token: %w", err)
		}

		return nil
	}

	if r.cipher == nil {
		return errNoCipher
	}

	enc, err := r.cipher.Encrypt(token)
	if err != nil {
		return err
	}

	if err := r.store.SetOption(OptionAPIToken, enc); err != nil {
		return fmt.Errorf("writing api token: %w", err)
	}

	return nil
}

// Reset deletes the settings document and the stored token.
func (r *SettingsRepo) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.DeleteOption(OptionSettings); err != nil {
		return err
	}

	return r.store.DeleteOption(OptionAPIToken)
}

// Masked returns the settings with the token masked for display.
func (r *SettingsRepo) Masked() (models.Settings, error) {
	s, err := r.Get()
	s.APIToken = MaskToken(s.APIToken)

	return s, err
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

package repos

import (
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestSettings_Defaults(t *testing.T) {
	r := NewSettingsRepo(testDB(t), testCipher(t))

	s, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)
	assert.True(t, s.UseQueue)
	assert.Equal(t, 200, s.LogsMax)
}

func TestSettings_UpdateMergesPatch(t *testing.T) {
	r := NewSettingsRepo(testDB(t), testCipher(t))

	_, err := r.Update(SettingsPatch{AccountID: ptr("acct"), AccountHash: ptr("hash")})
	require.NoError(t, err)

	s, err := r.Update(SettingsPatch{Debug: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "acct", s.AccountID)
	assert.Equal(t, "hash", s.AccountHash)
	assert.True(t, s.Debug)
	assert.True(t, s.UseQueue)
}

func TestSettings_LogsMaxClamped(t *testing.T) {
	r := NewSettingsRepo(testDB(t), testCipher(t))

	s, err := r.Update(SettingsPatch{LogsMax: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 50, s.LogsMax)

	s, err = r.Update(SettingsPatch{LogsMax: ptr(5000)})
	require.NoError(t, err)
	assert.Equal(t, 1000, s.LogsMax)
}

func TestSettings_TokenEncryptedAtRest(t *testing.T) {
	db := testDB(t)
	r := NewSettingsRepo(db, testCipher(t))

	_, err := r.Update(SettingsPatch{APIToken: ptr("super-secret-token")})
	require.NoError(t, err)

	var raw string
	found, err := db.GetOption(OptionAPIToken, &raw)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, raw, "super-secret-token")

	var doc map[string]any
	_, err = db.GetOption(OptionSettings, &doc)
	require.NoError(t, err)
	assert.NotContains(t, doc, "api_token")

	s, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", s.APIToken)
}

func TestSettings_EmptyTokenDeletes(t *testing.T) {
	r := NewSettingsRepo(testDB(t), testCipher(t))

	_, err := r.Update(SettingsPatch{APIToken: ptr("tok-1234")})
	require.NoError(t, err)
	_, err = r.Update(SettingsPatch{APIToken: ptr("")})
	require.NoError(t, err)

	s, err := r.Get()
	require.NoError(t, err)
	assert.Empty(t, s.APIToken)
}

func TestSettings_TokenWithoutCipher(t *testing.T) {
	r := NewSettingsRepo(testDB(t), nil)

	_, err := r.Update(SettingsPatch{APIToken: ptr("tok")})
	require.Error(t, err)
}

func TestSettings_UndecryptableTokenReadsEmpty(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SetOption(OptionAPIToken, "deadbeef"))

	s, err := NewSettingsRepo(db, testCipher(t)).Get()
	require.NoError(t, err)
	assert.Empty(t, s.APIToken)
}

func TestSettings_MaskedAndReset(t *testing.T) {
	r := NewSettingsRepo(testDB(t), testCipher(t))

	_, err := r.Update(SettingsPatch{AccountID: ptr("acct"), APIToken: ptr("abcdefgh1234")})
	require.NoError(t, err)

	m, err := r.Masked()
	require.NoError(t, err)
	assert.Equal(t, "********1234", m.APIToken)

	require.NoError(t, r.Reset())
	s, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "****", MaskToken("abc"))
	assert.Equal(t, "****", MaskToken("abcd"))
	assert.Equal(t, "*bcde", MaskToken("abcde"))
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	enc1, err := c.Encrypt("hello")
	require.NoError(t, err)
	enc2, err := c.Encrypt("hello")
	require.NoError(t, err)
	assert.NotEqual(t, enc1, enc2, "random nonce")

	plain, err := c.Decrypt(enc1)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	_, err = c.Decrypt("zz")
	assert.Error(t, err)
	_, err = c.Decrypt("00")
	assert.ErrorIs(t, err, errTokenCiphertext)
}

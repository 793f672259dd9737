package imagesync

import (
	"net/url"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

const deliveryBase = "https://imagedelivery.net/"

// URLBuilder builds imagedelivery.net URLs for one account hash.
type URLBuilder struct {
	accountHash string
}

// NewURLBuilder returns a builder for the given account hash.
func NewURLBuilder(accountHash string) URLBuilder {
	return URLBuilder{accountHash: accountHash}
}

// URL returns the delivery URL of an image in the given variant. The
// variant is inserted as is; it is validated when presets are saved.
func (b URLBuilder) URL(imageID, variant string) (string, error) {
	if b.accountHash == "" {
		return "", cfierrors.ErrMissingAccountHash
	}

	if imageID == "" {
		return "", cfierrors.ErrMissingImageID
	}

	return deliveryBase + url.PathEscape(b.accountHash) + "/" + url.PathEscape(imageID) + "/" + variant, nil
}

// URLFromPreset is URL with the preset's variant, "public" when p is nil
// or has none.
func (b URLBuilder) URLFromPreset(imageID string, p *models.Preset) (string, error) {
	return b.URL(imageID, p.VariantOrDefault())
}

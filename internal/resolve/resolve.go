// Package resolve picks the effective provider, model, and credential
// for one request from the layered configuration: request override,
// assistant config, tenant config, provider defaults, engine defaults.
//
// Resolution happens once per request and the result is immutable for
// that request. Tenant config edits are visible on the next request,
// never mid-flight.
package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/tutorstack/tutorstack/engine/internal/config"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Resolve computes the effective provider configuration for a request.
// override may be nil. Returns a configuration error when no provider,
// model, or required credential can be determined.
func Resolve(override *models.ModelOverride, assistant *models.AssistantConfig, tenant *models.TenantConfig, defaults config.ProviderDefaults) (*models.ResolvedProviderConfig, error) {
	if tenant == nil || len(tenant.Providers) == 0 {
		return nil, errs.New(errs.KindConfiguration, "tenant has no providers configured")
	}

	providerName := firstNonEmpty(
		overrideProvider(override),
		assistant.Connector,
		tenant.DefaultProvider,
		tenant.Providers[0].Name,
	)
	pc := tenant.Provider(providerName)
	if pc == nil {
		return nil, errs.Newf(errs.KindConfiguration, "provider %q is not configured for tenant %s", providerName, tenant.Tenant)
	}

	model := firstNonEmpty(
		overrideModel(override),
		assistant.Model,
		tenant.DefaultModel,
		pc.DefaultModel,
		firstOf(pc.Models),
	)
	if model == "" {
		return nil, errs.Newf(errs.KindConfiguration, "no model resolvable for provider %q", pc.Name)
	}

	// Local providers run without credentials; everything else needs one.
	if pc.APIKey == "" && pc.Kind != "ollama" {
		return nil, errs.Newf(errs.KindConfiguration, "provider %q has no credential", pc.Name)
	}

	rc := &models.ResolvedProviderConfig{
		Provider:       pc.Name,
		Kind:           pc.Kind,
		BaseURL:        pc.BaseURL,
		APIKey:         pc.APIKey,
		CredentialFP:   Fingerprint(pc.APIKey),
		Model:          model,
		FallbackModel:  pc.FallbackModel,
		TitleModel:     pc.TitleModel,
		ImageModel:     pc.ImageModel,
		ConnectTimeout: durOr(pc.ConnectTimeoutS, defaults.ConnectTimeout),
		RequestTimeout: durOr(pc.RequestTimeoutS, defaults.RequestTimeout),
		MaxConns:       intOr(pc.MaxConns, defaults.MaxConns),
	}
	return rc, nil
}

// Fingerprint returns a short stable digest of a credential, safe for
// logging and pool keying. Empty credentials map to "anon".
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return "anon"
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

func overrideProvider(o *models.ModelOverride) string {
	if o == nil {
		return ""
	}
	return o.Provider
}

func overrideModel(o *models.ModelOverride) string {
	if o == nil {
		return ""
	}
	return o.Model
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstOf(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func durOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rentfolio/notification-service/internal/settings"
)

// UnsupportedProviderError is a hard configuration error: the tenant's saved
// provider identifier is outside the supported set. It is never retried.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported email provider %q", e.Name)
}

type emailConstructor func(cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) EmailClient

// emailProviders is the closed registry of supported provider identifiers.
// The office365 aliases all construct the same client.
var emailProviders = map[string]emailConstructor{
	"gmail":        NewGmailClient,
	"office365":    NewOffice365Client,
	"outlook":      NewOffice365Client,
	"o365":         NewOffice365Client,
	"microsoft365": NewOffice365Client,
}

// CreateEmailClient selects and constructs the client for the tenant's
// configured provider. The match is case-insensitive.
func CreateEmailClient(name string, cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) (EmailClient, error) {
	construct, ok := emailProviders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnsupportedProviderError{Name: name}
	}
	return construct(cfg, timeout, logger), nil
}

// AvailableEmailProviders returns the supported identifiers, sorted, for
// configuration-time validation at the settings boundary.
func AvailableEmailProviders() []string {
	names := make([]string, 0, len(emailProviders))
	for name := range emailProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

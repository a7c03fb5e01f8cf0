package security

import (
	"fmt"
	"net/url"
	"strings"

	"ai-assist/internal/domain"
)

// ValidateEndpoint checks that a provider endpoint is an absolute http(s)
// URL without embedded credentials. Private addresses are allowed so that
// self-hosted models on the monitoring network keep working.
func ValidateEndpoint(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.NewDomainError("ValidateEndpoint", domain.ErrValidation, fmt.Sprintf("invalid URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return domain.NewDomainError("ValidateEndpoint", domain.ErrValidation, "missing URL scheme, only http/https allowed")
	default:
		return domain.NewDomainError("ValidateEndpoint", domain.ErrValidation,
			fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme))
	}

	if u.Hostname() == "" {
		return domain.NewDomainError("ValidateEndpoint", domain.ErrValidation, "empty hostname")
	}
	if u.User != nil {
		return domain.NewDomainError("ValidateEndpoint", domain.ErrValidation, "credentials in URL not allowed")
	}
	return nil
}

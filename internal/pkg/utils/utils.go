package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Extracts the host domain from a URL.
func GetDomainFromURL(inputURL string) (string, error) {
	if !strings.HasPrefix(inputURL, "http://") && !strings.HasPrefix(inputURL, "https://") {
		inputURL = "https://" + inputURL
	}
	parsedURL, err := url.Parse(inputURL)
	if err != nil {
		return "", errors.New("error parsing URL")
	}
	return strings.TrimPrefix(parsedURL.Hostname(), "www."), nil
}

// IsAbsoluteURL reports whether the value already carries a scheme or is
// protocol-relative.
func IsAbsoluteURL(value string) bool {
	return strings.HasPrefix(value, "http://") ||
		strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "//")
}

// ResolveURL resolves a possibly-relative reference against a base URL.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %v: %v", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL reference %v: %v", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

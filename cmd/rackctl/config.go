package main

import "strings"

// resolveEndpoint applies CLI configuration precedence: explicit flag values
// override environment values. Empty flag values are treated as unset.
func resolveEndpoint(flagEndpoint, flagToken, envEndpoint, envToken string) (endpoint, token string) {
	endpoint = strings.TrimSpace(envEndpoint)
	token = strings.TrimSpace(envToken)

	if value := strings.TrimSpace(flagEndpoint); value != "" {
		endpoint = value
	}
	if value := strings.TrimSpace(flagToken); value != "" {
		token = value
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return endpoint, token
}

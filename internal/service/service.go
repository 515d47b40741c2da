// Package service implements the HTTP-facing service layer.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewGuardService,
)

// Package biz contains the business logic layer.
// For GuardLane that is the guard registry: the breakers and limiters
// built once at startup and injected into the transport layer.
package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewGuardRegistry,
)

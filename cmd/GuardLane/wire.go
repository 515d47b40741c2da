//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"GuardLane/internal/biz"
	"GuardLane/internal/conf"
	"GuardLane/internal/server"
	"GuardLane/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Guards, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}

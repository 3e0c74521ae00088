package config

import "go.uber.org/fx"

// Конфиг регистрируем как fx-провайдер: один объект на весь граф.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}

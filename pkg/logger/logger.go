package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
	initOnce    sync.Once
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init собирает глобальные логгеры. Вызывается один раз на старте процесса;
// если забыли — первый лог инициализирует их сам.
func Init(service string) error {
	var err error
	initOnce.Do(func() {
		var l *zap.Logger
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			return
		}
		InfoLogger = l
		FatalLogger = l
	})
	if err != nil {
		return err
	}

	serviceName = service
	return nil
}

func ensure() {
	if InfoLogger == nil {
		_ = Init(serviceName)
	}
}

func Sync() {
	if InfoLogger != nil {
		_ = InfoLogger.Sync()
	}
}

func Info(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Warn(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Warn(msg)
}

func Error(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}

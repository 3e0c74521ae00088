package notify

import (
	"fmt"
	"log"
)

// Notifier — канал уведомлений владельцу (телеграм или stdout).
// Реализация живёт в телеграм-модуле; движок знает только интерфейс.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Stdout — заглушка: всё в лог. Используется, когда телеграм выключен.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { log.Println(msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

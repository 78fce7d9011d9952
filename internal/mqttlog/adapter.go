// Package mqttlog adapts a zerolog logger to the paho MQTT client's
// package-level logger interface, so the broker client's internal chatter
// lands in the application's structured log stream instead of stderr.
package mqttlog

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Adapter implements paho's [Logger] interface on top of zerolog, at a
// fixed level per instance.
//
// [Logger]: https://pkg.go.dev/github.com/eclipse/paho.mqtt.golang#Logger
type Adapter struct {
	zerolog zerolog.Logger
	level   zerolog.Level
}

func (a Adapter) Println(v ...any) {
	a.zerolog.WithLevel(a.level).Msg(fmt.Sprintln(v...))
}

func (a Adapter) Printf(format string, v ...any) {
	a.zerolog.WithLevel(a.level).Msgf(format, v...)
}

// Install routes all four of paho's package-level loggers through l.
// Paho's DEBUG stream is deliberately mapped to trace level: it logs every
// packet, which drowns real debug output.
func Install(l zerolog.Logger) {
	mqtt.CRITICAL = Adapter{zerolog: l, level: zerolog.ErrorLevel}
	mqtt.ERROR = Adapter{zerolog: l, level: zerolog.ErrorLevel}
	mqtt.WARN = Adapter{zerolog: l, level: zerolog.WarnLevel}
	mqtt.DEBUG = Adapter{zerolog: l, level: zerolog.TraceLevel}
}

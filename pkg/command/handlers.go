package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
)

// Asker answers a conversation; satisfied by *knowledge.Client.
type Asker interface {
	Call(ctx context.Context, turns []conversation.Turn) string
}

// History supplies the prior conversation; satisfied by *conversation.Context.
type History interface {
	Snapshot() []conversation.Turn
}

// Chat forwards the command, with history, to the knowledge service.
type Chat struct {
	asker   Asker
	history History
}

// NewChat creates a Chat handler.
func NewChat(asker Asker, history History) *Chat {
	return &Chat{asker: asker, history: history}
}

// Handle sends history plus the current command. It does not record the
// exchange; the session appends both turns once the reply is known.
func (c *Chat) Handle(ctx context.Context, cmd Command) Reply {
	turns := c.history.Snapshot()
	turns = append(turns, conversation.Turn{Role: conversation.RoleUser, Text: cmd.Text})
	return Reply{Text: c.asker.Call(ctx, turns)}
}

// Shutdown is the farewell handler.
var Shutdown = HandlerFunc(func(ctx context.Context, cmd Command) Reply {
	return Reply{Text: ReplyShutdown, Halt: true}
})

// ReplySensorsDown is spoken when the lab cannot be read.
const ReplySensorsDown = "I'm unable to reach the lab sensors, sir."

// Telemetry answers questions about current lab conditions.
type Telemetry struct {
	reader telemetry.Reader
	logger *slog.Logger
}

// NewTelemetry creates a Telemetry handler.
func NewTelemetry(reader telemetry.Reader, logger *slog.Logger) *Telemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telemetry{reader: reader, logger: logger.With("component", "command.telemetry")}
}

// TelemetryMatch selects the Telemetry route.
var TelemetryMatch = Any("temperature", "humidity", "gas")

// Handle reads the lab and formats the requested value.
func (t *Telemetry) Handle(ctx context.Context, cmd Command) Reply {
	r, err := t.reader.ReadCurrent(ctx)
	if err != nil {
		t.logger.Warn("lab read failed", "error", err)
		return Reply{Text: ReplySensorsDown}
	}

	switch {
	case HasPhrase(cmd.Key, "humidity"):
		return Reply{Text: fmt.Sprintf("The lab humidity is %.1f percent.", r.Humidity)}
	case HasPhrase(cmd.Key, "gas"):
		if r.GasAlert {
			return Reply{Text: "Warning, sir. Hazardous gas levels detected in the lab."}
		}
		return Reply{Text: "Gas levels in the lab are normal."}
	default:
		return Reply{Text: fmt.Sprintf("The lab temperature is %.1f degrees Celsius.", r.Temperature)}
	}
}

// AverageSource reports historical averages; satisfied by *store.SQLite.
// ok is false when no readings have been recorded.
type AverageSource interface {
	AverageTemperature(ctx context.Context) (avg float64, ok bool, err error)
	AverageHumidity(ctx context.Context) (avg float64, ok bool, err error)
}

// Average answers questions about recorded averages.
type Average struct {
	source AverageSource
	logger *slog.Logger
}

// NewAverage creates an Average handler.
func NewAverage(source AverageSource, logger *slog.Logger) *Average {
	if logger == nil {
		logger = slog.Default()
	}
	return &Average{source: source, logger: logger.With("component", "command.average")}
}

// AverageMatch selects the Average route.
var AverageMatch Matcher = func(key string) bool {
	return HasPhrase(key, "average") && Any("temperature", "humidity")(key)
}

// Handle looks up the requested average.
func (a *Average) Handle(ctx context.Context, cmd Command) Reply {
	humidity := HasPhrase(cmd.Key, "humidity")

	var (
		avg float64
		ok  bool
		err error
	)
	if humidity {
		avg, ok, err = a.source.AverageHumidity(ctx)
	} else {
		avg, ok, err = a.source.AverageTemperature(ctx)
	}

	switch {
	case err != nil:
		a.logger.Warn("average lookup failed", "error", err)
		return Reply{Text: "I'm unable to access the lab records, sir."}
	case !ok && humidity:
		return Reply{Text: "I have no humidity readings recorded yet, sir."}
	case !ok:
		return Reply{Text: "I have no temperature readings recorded yet, sir."}
	case humidity:
		return Reply{Text: fmt.Sprintf("The average lab humidity is %.1f percent.", avg)}
	default:
		return Reply{Text: fmt.Sprintf("The average lab temperature is %.1f degrees Celsius.", avg)}
	}
}

// Publisher sends device commands; satisfied by *iot.Client.
type Publisher interface {
	PublishCommand(ctx context.Context, device, state string) error
}

// StatusSource reports the last device status message; satisfied by *iot.Client.
type StatusSource interface {
	Status() (string, bool)
}

// Device switches devices on and off.
// The pump is switched through the lab server when a PumpController is set;
// every other device goes over the message broker.
type Device struct {
	publisher Publisher
	status    StatusSource
	pump      telemetry.PumpController
	logger    *slog.Logger
}

// DeviceOption configures a Device handler.
type DeviceOption func(*Device)

// WithStatus lets the handler answer "device status".
func WithStatus(s StatusSource) DeviceOption {
	return func(d *Device) { d.status = s }
}

// WithPump routes pump commands to the lab server.
func WithPump(p telemetry.PumpController) DeviceOption {
	return func(d *Device) { d.pump = p }
}

// NewDevice creates a Device handler. publisher may be nil when only the
// pump is controllable.
func NewDevice(publisher Publisher, logger *slog.Logger, opts ...DeviceOption) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device{publisher: publisher, logger: logger.With("component", "command.device")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var switchPattern = regexp.MustCompile(`\b(?:turn|switch)\s+(on|off)\s+(?:the\s+)?([a-z0-9][a-z0-9 ]*?)\s*[.!?]*$`)

// DeviceMatch selects the Device route.
var DeviceMatch Matcher = func(key string) bool {
	return switchPattern.MatchString(key) || HasPhrase(key, "device status")
}

// ParseSwitch extracts the device and state from "turn on the lights".
func ParseSwitch(key string) (device, state string, ok bool) {
	m := switchPattern.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[2]), m[1], true
}

// Handle switches the named device or reports the last status.
func (d *Device) Handle(ctx context.Context, cmd Command) Reply {
	if HasPhrase(cmd.Key, "device status") {
		if d.status != nil {
			if s, ok := d.status.Status(); ok {
				return Reply{Text: fmt.Sprintf("The last device status was: %s.", s)}
			}
		}
		return Reply{Text: "I have no device status to report, sir."}
	}

	device, state, ok := ParseSwitch(cmd.Key)
	if !ok {
		return Reply{Text: "Which device, sir?"}
	}

	var err error
	switch {
	case device == "pump" && d.pump != nil:
		err = d.pump.SetPump(ctx, state == "on")
	case d.publisher != nil:
		err = d.publisher.PublishCommand(ctx, device, state)
	default:
		return Reply{Text: "Device control is offline, sir."}
	}
	if err != nil {
		d.logger.Warn("device command failed", "device", device, "state", state, "error", err)
		return Reply{Text: fmt.Sprintf("I couldn't reach the %s, sir.", device)}
	}

	d.logger.Info("device switched", "device", device, "state", state)
	return Reply{Text: fmt.Sprintf("Turning %s the %s.", state, device)}
}

// Package lab simulates the lab sensor server: temperature, humidity and a
// gas alarm that change every few seconds, plus a switchable pump.
package lab

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-jarvis/pkg/telemetry"
)

// Defaults for the simulated sensors.
const (
	DefaultInterval = 2 * time.Second
	GasAlertChance  = 0.1
)

// Server serves GET /data and POST /pump.
type Server struct {
	app      *fiber.App
	addr     string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	rng     *rand.Rand
	reading telemetry.Reading
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithInterval sets how often the sensors are resampled.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSeed makes the sensor values reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Server) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a simulated lab listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		interval: DefaultInterval,
		logger:   slog.Default(),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "lab.server")

	app := fiber.New(fiber.Config{
		AppName:               "jarvis-lab",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Get("/data", s.handleData)
	app.Post("/pump", s.handlePump)
	s.app = app

	s.Sample()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Sample draws new sensor values. The pump state is kept.
func (s *Server) Sample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading.Temperature = round1(20 + s.rng.Float64()*10)
	s.reading.Humidity = round1(40 + s.rng.Float64()*20)
	s.reading.GasAlert = s.rng.Float64() < GasAlertChance
	s.reading.At = s.now()
}

// Reading returns the current values.
func (s *Server) Reading() telemetry.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading
}

// Run resamples on the interval and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sample()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("lab server listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}

func (s *Server) handleData(c *fiber.Ctx) error {
	return c.JSON(s.Reading())
}

// handlePump switches the pump for state=on|off. Any other value leaves it
// unchanged; the reply always carries the resulting state.
func (s *Server) handlePump(c *fiber.Ctx) error {
	s.mu.Lock()
	switch c.Query("state") {
	case "on":
		s.reading.Pump = true
	case "off":
		s.reading.Pump = false
	}
	on := s.reading.Pump
	s.mu.Unlock()

	s.logger.Info("pump", "on", on)
	return c.JSON(fiber.Map{"pump": on})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

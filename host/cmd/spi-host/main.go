// Command spi-host drives the SPI buses of a picospi board over USB
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"picospi/core"
	"picospi/host/config"
	"picospi/host/logging"
	"picospi/host/mcu"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	logLevel   = flag.String("log-level", "", "DEBUG, INFO, WARN or ERROR (overrides config)")
	watch      = flag.Bool("watch", false, "Re-apply bus settings when the config file changes")
	script     = flag.String("script", "", "Run commands from this file instead of stdin")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "spi-host: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if *configFile != "" {
		var err error
		if conf, err = config.Read(*configFile); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		conf.Serial.Device = *device
	}
	if *logLevel != "" {
		conf.Logging.Level = *logLevel
	}
	return conf, nil
}

func run() error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.Init(conf.Logging.Level, conf.Logging.Format, conf.Logging.File)
	if err != nil {
		return err
	}
	defer logging.Close()

	client := mcu.NewMCU(logger)
	client.SetTimeout(conf.Timeout)
	if err := client.ConnectWithConfig(&conf.Serial); err != nil {
		return err
	}
	defer client.Close()

	if err := client.RetrieveDictionary(); err != nil {
		return err
	}
	applyBuses(client, conf.Buses, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *watch && *configFile != "" {
		go func() {
			err := config.Watch(ctx, *configFile, logger, func(c *config.Config) {
				applyBuses(client, c.Buses, logger)
			})
			if err != nil {
				logger.Error("config watch stopped", "err", err)
			}
		}()
	}

	sh := &shell{client: client, out: os.Stdout, logger: logger}
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			return err
		}
		defer f.Close()
		return sh.run(f, false)
	}

	done := make(chan error, 1)
	go func() { done <- sh.run(os.Stdin, true) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fmt.Println()
		return nil
	}
}

// busStarter is the part of the client used to bring buses up
type busStarter interface {
	Begin(bus core.SPIBusID, hwCS bool, pin core.GPIOPin) (mcu.Status, error)
	BeginTransaction(bus core.SPIBusID, s core.SPISettings) (mcu.Status, error)
}

// applyBuses begins every configured bus and applies its settings.
// Failures are logged and the remaining buses still start.
func applyBuses(client busStarter, buses []config.BusConfig, logger *slog.Logger) int {
	started := 0
	for _, b := range buses {
		start := time.Now()
		bus := core.SPIBusID(b.Bus)
		settings, err := b.Settings()
		if err != nil {
			logger.Error("bad bus settings", "bus", b.Bus, "err", err)
			continue
		}
		if _, err := client.Begin(bus, b.HardwareCS, core.GPIOPin(b.Pin)); err != nil {
			logger.Error("begin failed", "bus", b.Bus, "pin", b.Pin, "err", err)
			continue
		}
		st, err := client.BeginTransaction(bus, settings)
		if err != nil {
			logger.Error("begin transaction failed", "bus", b.Bus, "err", err)
			continue
		}
		logger.Info("bus ready", "status", st.String(), "elapsed", time.Since(start))
		started++
	}
	return started
}

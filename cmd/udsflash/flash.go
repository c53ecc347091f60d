package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/doip"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/flasher"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/slcan"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Execute a flash script against an ECU",
	Long: `Execute the steps of a JSON flash script against an ECU, reporting
progress as the transfer proceeds.

Firmware file paths default to the "default_path" entries in the
configuration; --file overrides them per logical name. Exactly one
transport must be selected with --doip or --slcan.

Press Ctrl-C once to stop cooperatively at the next step boundary;
press it again to force an immediate exit.`,
	Example: `  # Flash over DoIP
  udsflash flash --config flash.json --doip 192.168.1.10 --ecu-addr 0x1234

  # Flash over SLCAN with an explicit application image
  udsflash flash --config flash.json --slcan /dev/ttyACM0 --file app=build/app.s19

  # Transport settings from a YAML file
  udsflash flash --config flash.json --settings bench.yaml`,
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVar(&configPath, "config", "", "Flash configuration JSON file (required)")
	flashCmd.Flags().StringArrayVar(&fileFlags, "file", nil, "Firmware file override as name=path (repeatable)")
	flashCmd.MarkFlagRequired("config")
}

func runFlash(cmd *cobra.Command, args []string) error {
	if err := loadSettings(cmd); err != nil {
		return err
	}

	cfg, err := flasher.LoadConfig(configPath)
	if err != nil {
		return err
	}

	paths, err := parseFileFlags(fileFlags)
	if err != nil {
		return err
	}

	transport, closeTransport, err := openTransport(cmd.Context())
	if err != nil {
		return err
	}
	defer closeTransport()

	exec := flasher.New(transport, cfg, paths, flasher.WithLogger(logrusAdapter{log}))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Info("stop requested, finishing current operation")
		exec.Stop()
		<-sigCh
		os.Exit(exitStopped)
	}()

	done := make(chan flasher.Outcome, 1)
	go func() {
		done <- exec.Run(ctx)
	}()

	var bar *progressbar.ProgressBar
	for event := range exec.Events() {
		switch ev := event.(type) {
		case flasher.LogEvent:
			if bar != nil {
				bar.Clear()
			}
			log.WithField("source", ev.Source).Info(ev.Message)
		case flasher.RangeEvent:
			bar = progressbar.NewOptions(ev.Total,
				progressbar.OptionSetDescription("flashing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		case flasher.ProgressEvent:
			if bar != nil {
				bar.Set(ev.Current)
			}
		case flasher.FinishEvent:
			if bar != nil {
				bar.Finish()
			}
		}
	}

	outcome := <-done
	switch outcome {
	case flasher.OutcomeSuccess:
		color.Green("Flash completed successfully")
		return nil
	case flasher.OutcomeStopped:
		color.Yellow("Flash stopped by user")
		os.Exit(exitStopped)
	default:
		color.Red("Flash failed")
		os.Exit(exitFailed)
	}
	return nil
}

// parseFileFlags turns repeated name=path flags into the executor's
// file path map.
func parseFileFlags(flags []string) (map[string]string, error) {
	paths := make(map[string]string, len(flags))
	for _, f := range flags {
		name, path, ok := strings.Cut(f, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --file value %q, expected name=path", f)
		}
		paths[name] = path
	}
	return paths, nil
}

// openTransport builds the selected transport and returns it with a
// cleanup function.
func openTransport(ctx context.Context) (uds.Transport, func(), error) {
	switch {
	case doipAddress != "" && slcanDevice != "":
		return nil, nil, fmt.Errorf("--doip and --slcan are mutually exclusive")

	case doipAddress != "":
		if ecuAddress == 0 {
			return nil, nil, fmt.Errorf("--ecu-addr is required with --doip")
		}
		client := doip.New(doipAddress,
			doip.WithECUAddress(ecuAddress),
			doip.WithClientAddress(clientAddress),
			doip.WithLogger(log),
		)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil

	case slcanDevice != "":
		port, err := slcan.OpenPort(slcanDevice, slcan.WithBaudRate(slcanBaud))
		if err != nil {
			return nil, nil, err
		}
		transport := slcan.NewTransport(port, canTxID, canRxID,
			slcan.WithTransportLogger(log),
		)
		return transport, func() { port.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("select a transport with --doip or --slcan")
	}
}

// logrusAdapter exposes the shared logrus logger through the executor's
// logger interface.
type logrusAdapter struct {
	log *logrus.Logger
}

func (l logrusAdapter) Debug(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l logrusAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Info(msg)
}

func (l logrusAdapter) Error(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}

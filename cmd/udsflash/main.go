// Command udsflash flashes ECU firmware over DoIP or SLCAN using a
// declarative JSON flash configuration.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Exit codes reported to the shell.
const (
	exitSuccess = 0
	exitFailed  = 1
	exitStopped = 2
)

// Command flags
var (
	settingsPath string
	logFile      string
	verbose      bool

	// transport selection
	doipAddress   string
	ecuAddress    uint16
	clientAddress uint16
	slcanDevice   string
	slcanBaud     int
	canTxID       uint32
	canRxID       uint32

	// flash command
	configPath string
	fileFlags  []string

	// inspect command
	inspectChecksum string
	inspectBase     uint32
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "udsflash",
	Short: "Flash ECU firmware over UDS",
	Long: `udsflash executes declarative flash scripts against an ECU using
UDS (ISO 14229) diagnostics, carried over DoIP (ISO 13400-2) or a
LAWICEL SLCAN serial adapter.

A flash script is a JSON file listing the firmware files, the ordered
diagnostic steps, and the transmission parameters. Step payloads can
reference parsed firmware data, addresses, sizes, and checksums through
tokens such as "app_data[0]".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsPath, "settings", "", "YAML settings file with transport defaults")
	pf.StringVar(&logFile, "log-file", "", "Write logs to this file with rotation")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.StringVar(&doipAddress, "doip", "", "DoIP gateway address (host[:port])")
	pf.Uint16Var(&ecuAddress, "ecu-addr", 0, "ECU logical address")
	pf.Uint16Var(&clientAddress, "client-addr", 0x0E00, "Tester logical address")
	pf.StringVar(&slcanDevice, "slcan", "", "SLCAN serial device (e.g. /dev/ttyACM0)")
	pf.IntVar(&slcanBaud, "slcan-baud", 115200, "SLCAN serial baud rate")
	pf.Uint32Var(&canTxID, "can-tx", 0x7E0, "CAN identifier for requests")
	pf.Uint32Var(&canRxID, "can-rx", 0x7E8, "CAN identifier for responses")

	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(inspectCmd)
}

// setupLogging configures the shared logger from the flags: debug level
// with --verbose, rotating file output with --log-file.
func setupLogging() error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		})
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(exitFailed)
	}
}

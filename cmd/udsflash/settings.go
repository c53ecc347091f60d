package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// settings holds transport defaults loaded from a YAML file. Command
// line flags override any value set here.
type settings struct {
	DoIP struct {
		Address       string `yaml:"address"`
		ECUAddress    uint16 `yaml:"ecuAddress"`
		ClientAddress uint16 `yaml:"clientAddress"`
	} `yaml:"doip"`
	SLCAN struct {
		Device   string `yaml:"device"`
		BaudRate int    `yaml:"baudRate"`
		TxID     uint32 `yaml:"txId"`
		RxID     uint32 `yaml:"rxId"`
	} `yaml:"slcan"`
}

// loadSettings reads the YAML settings file and fills in any transport
// flag the user did not set explicitly.
func loadSettings(cmd *cobra.Command) error {
	if settingsPath == "" {
		return nil
	}
	raw, err := os.ReadFile(settingsPath)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	var s settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("doip") && s.DoIP.Address != "" {
		doipAddress = s.DoIP.Address
	}
	if !flags.Changed("ecu-addr") && s.DoIP.ECUAddress != 0 {
		ecuAddress = s.DoIP.ECUAddress
	}
	if !flags.Changed("client-addr") && s.DoIP.ClientAddress != 0 {
		clientAddress = s.DoIP.ClientAddress
	}
	if !flags.Changed("slcan") && s.SLCAN.Device != "" {
		slcanDevice = s.SLCAN.Device
	}
	if !flags.Changed("slcan-baud") && s.SLCAN.BaudRate != 0 {
		slcanBaud = s.SLCAN.BaudRate
	}
	if !flags.Changed("can-tx") && s.SLCAN.TxID != 0 {
		canTxID = s.SLCAN.TxID
	}
	if !flags.Changed("can-rx") && s.SLCAN.RxID != 0 {
		canRxID = s.SLCAN.RxID
	}
	return nil
}

package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/checksum"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/firmware"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Parse a firmware file and print its segments",
	Long: `Parse a firmware file (Motorola S-record, Intel HEX, TI-TXT, or raw
binary) and print each memory segment with its address, size, and
checksum. Useful for verifying an image before flashing it.`,
	Example: `  udsflash inspect build/app.s19
  udsflash inspect --checksum sha256 build/app.hex
  udsflash inspect --base 0x08000000 build/app.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectChecksum, "checksum", "crc32", "Checksum algorithm (crc32, md5, sha256)")
	inspectCmd.Flags().Uint32Var(&inspectBase, "base", 0, "Base address for raw binary files")
}

func runInspect(cmd *cobra.Command, args []string) error {
	strategy, err := checksum.New(checksum.Type(inspectChecksum))
	if err != nil {
		return err
	}

	img, err := firmware.Parse(args[0], firmware.WithBaseAddress(inspectBase))
	if err != nil {
		return err
	}
	segments := img.Segments()

	bold := color.New(color.Bold)
	bold.Printf("%s: %d segment(s)\n", args[0], len(segments))

	var total int
	for i, seg := range segments {
		sum, err := strategy.Calculate(seg.Data)
		if err != nil {
			return err
		}
		fmt.Printf("  [%d] 0x%08X - 0x%08X  %7d bytes  %s %s\n",
			i, seg.Address, seg.End()-1, len(seg.Data),
			inspectChecksum, strings.ToUpper(hex.EncodeToString(sum)))
		total += len(seg.Data)
	}
	fmt.Printf("  total %d bytes\n", total)
	return nil
}

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sua-org/nursecall-bus/internal/decoder"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a captured datagram offline",
	Example: `  nursecall-bus decode 02180...03
  nursecall-bus decode "02 18 01 0f ... 03" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(strings.Join(args, ""))
		raw, err := hex.DecodeString(clean)
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}

		alert, err := decoder.Decode(raw)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(alert)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "EVENT\t%s\n", alert.EventType)
		fmt.Fprintf(w, "ROOM\t%s\n", alert.Room)
		fmt.Fprintf(w, "BED\t%s\n", alert.Bed)
		fmt.Fprintf(w, "DEVICE\t%s\n", alert.DeviceType)
		fmt.Fprintf(w, "DEVICE TIME\t%s\n", alert.DeviceTimestamp)
		fmt.Fprintf(w, "TITLE\t%s\n", alert.Title())
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

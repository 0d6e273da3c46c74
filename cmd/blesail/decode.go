package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/profile"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <decoder> <hex>",
	Short: "Decode one payload offline",
	Long: fmt.Sprintf(`Decodes a characteristic payload given in hex, exactly as a live session would.

Decoders: %s, or lua:<script.lua>

Examples:
  blesail decode sint16 FF38          # -2
  blesail decode sint32 "00 00 03 E8" # 1
  blesail decode float64 3FF0000000000000
  blesail decode lua:decoders/heading.lua 0x1F40`, strings.Join(decode.Names(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: runDecode,
}

// parseHexPayload accepts "FF38", "ff 38", "FF:38" and "0xFF38"
func parseHexPayload(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	decoders := profile.NewDecoders("", logger)
	defer decoders.Close()

	fn, err := decoders.Resolve(args[0])
	if err != nil {
		return err
	}
	data, err := parseHexPayload(args[1])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	text, err := fn(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

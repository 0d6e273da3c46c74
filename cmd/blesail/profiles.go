package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blesail"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/profile"
)

// profilesCmd represents the profiles command
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List device profiles and their data sources",
	Long: `Lists the built-in device profiles, plus the ones of --profile-file, with the
filter used to select the sensor and every data source they subscribe to.`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

var (
	profilesFile    string
	profilesExample bool
)

func init() {
	profilesCmd.Flags().StringVar(&profilesFile, "profile-file", "", "YAML file with additional profiles")
	profilesCmd.Flags().BoolVar(&profilesExample, "example", false, "Print an example profile file and exit")
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	if profilesExample {
		_, err := fmt.Fprint(cmd.OutOrStdout(), blesail.ExampleProfile)
		return err
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	decoders := profile.NewDecoders("", logger)
	defer decoders.Close()

	set, err := loadProfiles(profilesFile, decoders)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	for i, p := range set.All() {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s - %s\n", p.Name, p.Description)
		fmt.Fprintf(out, "  filter: %s\n", p.Filter)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  SOURCE\tCHARACTERISTIC\tDECODER\tHISTORY")
		for _, src := range p.Sources {
			history := "-"
			if src.History > 0 {
				history = fmt.Sprint(src.History)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", src.Name, device.ShortenUUID(device.NormalizeUUID(src.Characteristic)), src.Decoder, history)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

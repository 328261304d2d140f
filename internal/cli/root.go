package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ronappleton/teams-approval-bot/internal/card"
)

// NewRootCommand runs serve with the --config path when invoked without a
// subcommand.
func NewRootCommand(serve func(configPath string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "approvalbot",
		Short:         "Teams approval bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return serve(configPath)
		},
	}

	cmd.PersistentFlags().String("config", "config.yaml", "Path to config file")
	cmd.AddCommand(newCatalogCommand(), newRenderCommand())
	return cmd
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the card templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := card.NewCatalog()
			if err != nil {
				return err
			}
			for _, id := range catalog.IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newRenderCommand() *cobra.Command {
	var (
		cardID   string
		dataPath string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a card template with JSON data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := card.NewCatalog()
			if err != nil {
				return err
			}
			var data []byte
			switch dataPath {
			case "":
			case "-":
				data, err = io.ReadAll(cmd.InOrStdin())
			default:
				data, err = os.ReadFile(dataPath)
			}
			if err != nil {
				return fmt.Errorf("read data: %w", err)
			}
			var in any
			if data != nil {
				in = data
			}
			out, err := catalog.Render(card.ID(cardID), in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&cardID, "card", "", "Card template id")
	cmd.Flags().StringVar(&dataPath, "data", "", "JSON data file, - for stdin")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mindstream/internal/app"
	"github.com/ent0n29/mindstream/internal/persona"
	"github.com/ent0n29/mindstream/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Build and render persona profiles",
	}
	cmd.AddCommand(newProfileGenerateCmd(), newProfileRenderCmd())
	return cmd
}

func newProfileGenerateCmd() *cobra.Command {
	var (
		chatDir      string
		templatePath string
		outPath      string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Fill a persona template from exported chat logs using the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if chatDir == "" {
				return errors.New("--chats is required")
			}
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			tmpl := persona.DefaultTemplate()
			if templatePath != "" {
				if tmpl, err = persona.LoadFile(templatePath); err != nil {
					return err
				}
			}

			messages, err := profile.ReadChatDir(chatDir, logger)
			if err != nil {
				return err
			}

			adapter, err := app.NewInferenceAdapter(cfg)
			if err != nil {
				return err
			}
			res, err := profile.NewGenerator(adapter, logger).Generate(cmd.Context(), tmpl, profile.FormatForModel(messages))
			if err != nil {
				return err
			}
			if err := persona.WriteFile(outPath, res.Profile); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s: %d fields filled from %d messages\n", outPath, len(res.Applied), len(messages))
			rejected := make([]string, 0, len(res.Rejected))
			for path := range res.Rejected {
				rejected = append(rejected, path)
			}
			sort.Strings(rejected)
			for _, path := range rejected {
				fmt.Fprintf(out, "  rejected %s: %v\n", path, res.Rejected[path])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatDir, "chats", "", "Directory of exported chat JSON files")
	cmd.Flags().StringVar(&templatePath, "template", "", "Template file (defaults to the built-in template)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "persona.yaml", "Output file, .json or .yaml")
	return cmd
}

func newProfileRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render [persona-file]",
		Short: "Print the personality text a persona file produces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			text, err := app.LoadPersonality(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

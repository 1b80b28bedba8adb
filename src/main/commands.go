package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GouthamSPC/Screenshot2/src/export"
	"github.com/GouthamSPC/Screenshot2/src/screenshot"
)

func newMonitorsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitors",
		Short: "List the monitors available for capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enableDPIAwareness()
			displays, err := screenshot.Displays()
			if err != nil {
				return err
			}
			return printDisplays(cmd, displays)
		},
	}
}

func printDisplays(cmd *cobra.Command, displays []screenshot.Display) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONITOR\tSIZE\tORIGIN")
	for _, d := range displays {
		fmt.Fprintf(w, "%d\t%dx%d\t(%d,%d)\n", d.Index+1, d.Width, d.Height, d.X, d.Y)
	}
	return w.Flush()
}

func newConvertCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <document.docx>",
		Short: "Convert a saved document to PDF next to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			pdf, err := export.ConvertDocument(cmd.Context(), export.NewOfficeConverter(cfg.PDFConverter), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pdf)
			return nil
		},
	}
	cmd.Flags().String("pdf-converter", "soffice", "office binary used for PDF conversion")
	return cmd
}

// cmd_estimate.go - Speicherbedarf und Modelltyp
// Hauptfunktionen: EstimateHandler, ClassifyHandler
package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/ngramlm/arpa"
	"github.com/7blacky7/ngramlm/format"
	"github.com/7blacky7/ngramlm/lm"
)

// newEstimateCmd - Erstellt den estimate Command
func newEstimateCmd() *cobra.Command {
	estimateCmd := &cobra.Command{
		Use:   "estimate INPUT.arpa",
		Short: "Show the memory needed by every model type",
		Args:  cobra.ExactArgs(1),
		RunE:  EstimateHandler,
	}
	addModelFlags(estimateCmd.Flags())
	return estimateCmd
}

// newClassifyCmd - Erstellt den classify Command
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE",
		Short: "Report whether a file is a binary model and of which type",
		Args:  cobra.ExactArgs(1),
		RunE:  ClassifyHandler,
	}
}

// EstimateHandler - Liest die Anzahlen der ARPA-Datei und gibt eine Tabelle aus
func EstimateHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	r, err := arpa.Open(args[0])
	if err != nil {
		return err
	}
	counts, err := r.ReadCounts()
	r.Close()
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range lm.Estimate(counts, cfg) {
		data = append(data, []string{e.Type.String(), format.HumanBytes(int64(e.Bytes)), strconv.FormatUint(e.Bytes, 10)})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "counts: %v\n\n", counts)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"TYPE", "SIZE", "BYTES"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

// ClassifyHandler - Gibt den Modelltyp einer Binaerdatei oder "ARPA" aus
func ClassifyHandler(cmd *cobra.Command, args []string) error {
	t, binary, err := lm.Classify(args[0])
	if err != nil {
		return err
	}
	if !binary {
		fmt.Fprintln(cmd.OutOrStdout(), "ARPA")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

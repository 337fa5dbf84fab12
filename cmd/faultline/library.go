package main

import (
	"fmt"
	"strings"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <records.yaml|records.json>",
	Short: "Import failure mode records into the evidence library",
	Long: `Import failure mode records into the evidence library. Records with an id
replace the existing row; records without one are appended.`,
	Args: cobra.ExactArgs(1),
}

func runImportCmd(a *app.App, cmd *cobra.Command, args []string) {
	records, err := knowledge.LoadRecords(args[0])
	if err != nil {
		fail(a, "Failed to load records", err)
	}
	n, err := a.ImportRecords(cmd.Context(), records)
	if err != nil {
		fail(a, "Failed to import records", err)
	}
	fmt.Printf("✅ Imported %d failure mode records from %s\n", n, args[0])
}

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "List the fault signatures used by the recommendation engine",
}

var signaturesJSON bool

func init() {
	signaturesCmd.Flags().BoolVar(&signaturesJSON, "json", false, "Print signatures as JSON")
}

func runSignaturesCmd(a *app.App, cmd *cobra.Command, args []string) {
	sigs := a.Engine.Signatures()
	if signaturesJSON {
		if err := printJSON(sigs); err != nil {
			fail(a, "Failed to encode signatures", err)
		}
		return
	}
	for _, s := range sigs {
		types := "all equipment"
		if len(s.EquipmentTypes) > 0 {
			types = strings.Join(s.EquipmentTypes, ", ")
		}
		fmt.Printf("%s  %s (%s)\n", s.ID, s.SpecificFault, s.FailureType)
		fmt.Printf("    patterns: %s\n", strings.Join(s.EvidencePatterns, "; "))
		fmt.Printf("    applies to: %s, threshold %d%%\n", types, s.ConfidenceThreshold)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkBenefitID string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the ledger conservation invariants",
	Long: `Recomputes total = unassigned + assigned for every benefit and
remaining = assigned - deliveries for every allocation. Exits non-zero when
any violation is found.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkBenefitID, "benefit", "", "check a single benefit")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	violations, err := a.services.Checker.Check(cmd.Context(), checkBenefitID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(violations); err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d ledger violations found", len(violations))
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/bootstrap"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/security"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the policy and pattern documents",
		Long:  "Load the policy and extractor pattern documents, check them and print the effective weights and visibility lattice.",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	})
}

// validationReport summarizes a validated policy.
type validationReport struct {
	Weights map[types.Dimension]float64                   `json:"weights"`
	Lattice map[types.SecurityLevel][]types.SecurityLevel `json:"lattice"`
	Tiers   []types.Tier                                  `json:"tiers"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	policy, _, err := bootstrap.LoadDocuments(cfg.Policy)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	filter, err := security.NewFilter(policy)
	if err != nil {
		return err
	}

	report := validationReport{
		Weights: policy.Weights,
		Lattice: make(map[types.SecurityLevel][]types.SecurityLevel),
		Tiers:   types.ValidTiers,
	}
	for _, level := range types.AllSecurityLevels {
		report.Lattice[level] = filter.VisibleLevels(types.MemoryContext{SecurityLevel: level})
	}
	printJSON(report)
	return nil
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Query memories",
		Long:  "Run a multi-dimensional query as the given owner and context and print the ranked results.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	addContextFlags(cmd)
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().StringSlice("weight", nil, "Dimension weight override as dim=value, repeatable")
	cmd.Flags().Bool("trace", false, "Print the search trace with the results")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	owner, raw := contextFromFlags(cmd)
	limit, _ := cmd.Flags().GetInt("limit")
	weightFlags, _ := cmd.Flags().GetStringSlice("weight")
	trace, _ := cmd.Flags().GetBool("trace")

	weights, err := parseWeights(weightFlags)
	if err != nil {
		return err
	}
	var opts []engine.QueryOption
	if len(weights) > 0 {
		opts = append(opts, engine.WithWeights(weights))
	}

	rt := openRuntime()
	defer rt.Close()

	text := strings.Join(args, " ")
	if trace {
		res, debug, err := rt.Engine.DebugQuery(cmd.Context(), owner, text, raw, limit, opts...)
		if err != nil {
			return err
		}
		printJSON(map[string]interface{}{"results": res.Records, "trace": debug})
		return nil
	}

	results, err := rt.Engine.Query(cmd.Context(), owner, text, raw, limit, opts...)
	if err != nil {
		return err
	}
	printJSON(results)
	return nil
}

// parseWeights reads dim=value pairs. Dimensions not named keep weight 0,
// so a partial override must still name content.
func parseWeights(pairs []string) (map[types.Dimension]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	weights := make(map[types.Dimension]float64, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q: want dim=value", pair)
		}
		dim := types.Dimension(strings.TrimSpace(name))
		if !dim.IsValid() {
			return nil, fmt.Errorf("unknown dimension %q", name)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %w", dim, err)
		}
		weights[dim] = w
	}
	return weights, nil
}

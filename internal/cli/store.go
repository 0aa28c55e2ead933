package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		RunE:  runStore,
	}
	addContextFlags(cmd)
	cmd.Flags().String("relationship", "", "Relationship depth with the owner, e.g. acquaintance or close_friend")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	owner, raw := contextFromFlags(cmd)
	relationship, _ := cmd.Flags().GetString("relationship")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required (positional arg or stdin)")
	}

	rt := openRuntime()
	defer rt.Close()

	var opts []engine.StoreOption
	if relationship != "" {
		opts = append(opts, engine.WithRelationshipDepth(relationship))
	}
	id, err := rt.Engine.Store(cmd.Context(), owner, strings.TrimSpace(content), raw, opts...)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"id": id})
	return nil
}

// Package cli implements the whisper-memoryctl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/bootstrap"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/notify"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var (
	policyPath   string
	patternsPath string
	storageFlag  string
	dataPath     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "whisper-memoryctl",
	Short: "Operate a multi-dimensional memory store",
	Long:  "Validate policy documents, run aging sweeps and store or query memories directly against the configured store.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy YAML (default: $WHISPER_POLICY_PATH or built-in)")
	RootCmd.PersistentFlags().StringVar(&patternsPath, "patterns", "", "Extractor patterns YAML (default: $WHISPER_PATTERNS_PATH or built-in)")
	RootCmd.PersistentFlags().StringVar(&storageFlag, "storage", "", "Storage engine: sqlite, postgres or memory (default: $WHISPER_STORAGE_ENGINE)")
	RootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "SQLite data directory (default: $WHISPER_DATA_PATH)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if policyPath != "" {
		cfg.Policy.PolicyPath = policyPath
	}
	if patternsPath != "" {
		cfg.Policy.PatternsPath = patternsPath
	}
	if storageFlag != "" {
		cfg.Storage.Engine = storageFlag
	}
	if dataPath != "" {
		cfg.Storage.DataPath = dataPath
	}
	// A one-shot command has no use for the background ticker.
	cfg.Engine.SweepInterval = 0
	cfg.Engine.SweepOnStart = false
	return cfg
}

// openRuntime builds the engine and relays its events to a server sharing
// the data directory.
func openRuntime() *bootstrap.Runtime {
	cfg := loadConfig()
	rt, err := bootstrap.New(cfg)
	if err != nil {
		exitErr("initialize engine", err)
	}
	writer := notify.NewEventWriter(cfg.Storage.DataPath)
	rt.Engine.OnEvent(func(ev engine.Event) {
		if err := writer.Notify(ev); err != nil {
			log.Printf("cli: %v", err)
		}
	})
	return rt
}

// addContextFlags registers the flags that describe where a message was seen.
func addContextFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("owner", "o", "", "Owner (user) ID (required)")
	cmd.Flags().String("platform", "api", "Platform name: api or discord")
	cmd.Flags().String("channel-type", "dm", "Channel type: dm, text, thread, private_thread")
	cmd.Flags().String("server", "", "Server ID")
	cmd.Flags().String("channel", "cli", "Channel ID")
	cmd.Flags().Bool("public", false, "Everyone on the server can read the channel")
	cmd.Flags().Bool("cross-server", false, "Content may be shared across servers")
	_ = cmd.MarkFlagRequired("owner")
}

func contextFromFlags(cmd *cobra.Command) (string, types.RawContext) {
	owner, _ := cmd.Flags().GetString("owner")
	platform, _ := cmd.Flags().GetString("platform")
	channelType, _ := cmd.Flags().GetString("channel-type")
	server, _ := cmd.Flags().GetString("server")
	channel, _ := cmd.Flags().GetString("channel")
	crossServer, _ := cmd.Flags().GetBool("cross-server")

	raw := types.RawContext{
		Platform:        platform,
		ChannelType:     channelType,
		ServerID:        server,
		ChannelID:       channel,
		CrossServerSafe: crossServer,
	}
	if cmd.Flags().Changed("public") {
		public, _ := cmd.Flags().GetBool("public")
		raw.EveryoneCanRead = &public
	}
	return owner, raw
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Fprintln(RootCmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

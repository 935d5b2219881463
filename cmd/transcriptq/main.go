package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/transcript-queue/internal/config"
	"github.com/codebuildervaibhav/transcript-queue/internal/logging"
)

var (
	cfgFile   string
	cfg       *config.Config
	logger    zerolog.Logger
	logBuffer = logging.NewLogBuffer(logging.DefaultBufferLines)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "transcriptq",
	Short: "Transcript acquisition queue workers",
	Long: `transcriptq turns a shared table of video links into transcripts.

The fetch role downloads audio for pending rows, the transcribe role runs
speech recognition on downloaded audio, and the pipeline role tries
published captions first and falls back to local recognition. Roles only
coordinate through the table, so they can run on different machines.`,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(
		newRoleCmd(roleFetch),
		newRoleCmd(roleTranscribe),
		newRoleCmd(rolePipeline),
		newQueueCmd(),
		newDoctorCmd(),
		newAuthCmd(),
		newConfigCmd(),
	)
}

// persistentPreRun loads configuration and the logger before each command
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.New(cfg.Logging, logBuffer)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

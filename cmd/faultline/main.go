package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/doctor"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "faultline - root-cause inference for industrial incidents",
	Long: `faultline ranks candidate failure modes for an equipment incident from its
symptoms, taxonomy and parsed evidence, and keeps an evidence library and
history of past investigations in a local sqlite database.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(signaturesCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(outcomeCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(escalationsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for faultline for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

var versionCheck bool

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("faultline v%s\n", version.Version)
	if !versionCheck {
		return
	}
	latest, err := version.CheckForUpdates(cmd.Context(), version.ReleasesURL)
	if err != nil {
		a.Core.Logger.Warn("Version check failed", zap.Error(err))
		fmt.Printf("❌ Version check failed: %v\n", err)
		return
	}
	if latest != "" {
		fmt.Printf("A newer release is available: v%s\n", latest)
	} else {
		fmt.Println("✅ Up to date")
	}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on configuration, database and providers",
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) {
	diagnostics := doctor.NewRunner(a.Core.Config, a.Core.DB, llm.NewRegistry()).RunAll(cmd.Context())
	diagnostics.PrintReport(os.Stdout)
	if diagnostics.Status != "healthy" {
		os.Exit(1)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail reports err on stderr and in the log, then exits.
func fail(a *app.App, msg string, err error) {
	a.Core.Logger.Error(msg, zap.Error(err))
	fmt.Fprintf(os.Stderr, "❌ %s: %v\n", msg, err)
	a.Close()
	os.Exit(1)
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appInstance, err := app.NewApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	doctorCmd.Run = newAppRunner(appInstance, runDoctorCmd)
	analyzeCmd.Run = newAppRunner(appInstance, runAnalyzeCmd)
	importCmd.Run = newAppRunner(appInstance, runImportCmd)
	signaturesCmd.Run = newAppRunner(appInstance, runSignaturesCmd)
	patternsCmd.Run = newAppRunner(appInstance, runPatternsCmd)
	outcomeCmd.Run = newAppRunner(appInstance, runOutcomeCmd)
	proposalsCmd.Run = newAppRunner(appInstance, runProposalsCmd)
	approveCmd.Run = newAppRunner(appInstance, runReviewCmd)
	rejectCmd.Run = newAppRunner(appInstance, runReviewCmd)
	escalationsCmd.Run = newAppRunner(appInstance, runEscalationsCmd)
	statsCmd.Run = newAppRunner(appInstance, runStatsCmd)

	if err := rootCmd.ExecuteContext(appInstance.Ctx); err != nil {
		appInstance.Core.Logger.Error("Root command execution failed", zap.Error(err))
		appInstance.Close()
		os.Exit(1)
	}
}

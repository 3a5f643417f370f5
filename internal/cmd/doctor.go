package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/observability"
)

var doctorProvider string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  goferry doctor                # Full environment check
  goferry doctor --provider s3  # S3-specific checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	log := observability.CLILogger

	log.Info("=== goferry doctor ===")
	log.Info("Running diagnostic checks...")

	ok := true
	checkNum := 1
	totalChecks := 4
	if doctorProvider == "s3" {
		totalChecks = 6
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		ok = false
	}
	checkNum++

	if cfg, err := currentConfig(ctx); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ %v", checkNum, totalChecks, err))
		ok = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ on_exists=%s concurrency=%d",
			checkNum, totalChecks, cfg.Transfer.OnExists, cfg.Batch.Concurrency))
	}
	checkNum++

	tmp := os.TempDir()
	if err := (dirWritableChecker{dir: tmp}).CheckHealth(ctx); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking temp directory... ❌ %s", checkNum, totalChecks, tmp), zap.Error(err))
		ok = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking temp directory... ✅ %s", checkNum, totalChecks, tmp))
	}
	checkNum++

	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if doctorProvider == "s3" {
		ok = runS3Checks(ctx, checkNum, totalChecks) && ok
	}

	if ok {
		log.Info("✅ All checks passed!")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("=== End Diagnostics ===")
	return nil
}

func runS3Checks(ctx context.Context, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	log.Info("S3 Provider Checks:")

	var opts []func(*awsconfig.LoadOptions) error
	if cfg, err := currentConfig(ctx); err == nil {
		if cfg.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3.Profile))
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source),
		zap.String("region", awsCfg.Region))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use IAM role when running on AWS infrastructure")
	log.Info("For S3-compatible storage (MinIO, moto), also set s3.endpoint or GOFERRY_S3_ENDPOINT")
}

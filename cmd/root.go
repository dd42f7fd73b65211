package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudmount/s3fuse/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// MountConfig is the fully resolved configuration, populated by Viper
	// in initConfig before rootCmd.RunE fires.
	MountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "s3fuse [flags] bucket mount_point",
	Short: "Mount an S3-compatible bucket as a local filesystem",
	Long: `s3fuse is a FUSE adapter that projects an S3-compatible bucket
as a locally mounted POSIX-like tree.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		bucketName, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}
		if MountConfig.S3.BucketName == "" {
			MountConfig.S3.BucketName = bucketName
		}

		return mountWithArgs(cmd.Context(), mountPoint, &MountConfig)
	},
}

func populateArgs(args []string) (bucketName string, mountPoint string, err error) {
	bucketName = args[0]
	mountPoint, err = resolvePath(args[1])
	if err != nil {
		err = fmt.Errorf("canonicalizing mount point: %w", err)
	}
	return
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}

	resolved, err := resolvePath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}

	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}

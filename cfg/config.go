package cfg

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration: CLI flags and
// YAML file, merged by Viper in that precedence order (see cmd/root.go).
// Environment variables are not bound.
type Config struct {
	Filesystem FilesystemConfig `yaml:"filesystem"`
	S3         S3Config         `yaml:"s3"`
}

// FilesystemConfig holds the "filesystem.*" configuration keys.
type FilesystemConfig struct {
	// FileMode/DirMode: -1 means "use built-in default".
	FileMode int32 `yaml:"file-mode"`
	DirMode  int32 `yaml:"dir-mode"`

	DirCacheMaxTime  time.Duration `yaml:"dir-cache-max-time"`
	FileCacheMaxTime time.Duration `yaml:"file-cache-max-time"`
}

// S3Config holds the "s3.*" configuration keys, plus the connection
// settings a real CLI must accept on top of the ones a resolved mount
// needs at runtime.
type S3Config struct {
	BucketName  string `yaml:"bucket-name"`
	KeyPrefix   string `yaml:"key-prefix"`
	StorageType string `yaml:"storage-type"`

	CheckEmptyFiles            bool `yaml:"check-empty-files"`
	ForceHeadRequestsOnLookup  bool `yaml:"force-head-requests-on-lookup"`

	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access-key-id"`
	SecretAccessKey string `yaml:"secret-access-key"`
	SessionToken    string `yaml:"session-token"`
	UsePathStyle    bool   `yaml:"use-path-style"`
}

// BindFlags registers every recognised flag on flagSet and binds it into
// Viper under the matching dotted key (the flag name is the key's last
// component).
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string) error {
		return viper.BindPFlag(key, flagSet.Lookup(key[strings.LastIndex(key, ".")+1:]))
	}

	flagSet.Int32P("file-mode", "", -1, "Default file mode bits (octal-as-decimal), -1 for built-in default.")
	if err := bind("filesystem.file-mode"); err != nil {
		return err
	}

	flagSet.Int32P("dir-mode", "", -1, "Default directory mode bits, -1 for built-in default.")
	if err := bind("filesystem.dir-mode"); err != nil {
		return err
	}

	flagSet.DurationP("dir-cache-max-time", "", 60*time.Second, "Directory-listing and xattr cache TTL.")
	if err := bind("filesystem.dir-cache-max-time"); err != nil {
		return err
	}

	flagSet.DurationP("file-cache-max-time", "", 60*time.Second, "Negative-lookup cache TTL.")
	if err := bind("filesystem.file-cache-max-time"); err != nil {
		return err
	}

	flagSet.StringP("bucket-name", "", "", "S3 bucket name backing the mount.")
	if err := bind("s3.bucket-name"); err != nil {
		return err
	}

	flagSet.StringP("key-prefix", "", "", "Key prefix under which the mount is rooted.")
	if err := bind("s3.key-prefix"); err != nil {
		return err
	}

	flagSet.StringP("storage-type", "", "STANDARD", "x-amz-storage-class applied on rename copy.")
	if err := bind("s3.storage-type"); err != nil {
		return err
	}

	flagSet.BoolP("check-empty-files", "", false, "Issue a HEAD for zero-byte files to detect directory markers.")
	if err := bind("s3.check-empty-files"); err != nil {
		return err
	}

	flagSet.BoolP("force-head-requests-on-lookup", "", false, "Always issue a HEAD on lookup instead of trusting cached attributes.")
	if err := bind("s3.force-head-requests-on-lookup"); err != nil {
		return err
	}

	flagSet.StringP("endpoint", "", "", "S3-compatible endpoint URL.")
	if err := bind("s3.endpoint"); err != nil {
		return err
	}

	flagSet.StringP("region", "", "us-east-1", "S3 region used for SigV4 signing.")
	if err := bind("s3.region"); err != nil {
		return err
	}

	flagSet.StringP("access-key-id", "", "", "S3 access key ID.")
	if err := bind("s3.access-key-id"); err != nil {
		return err
	}

	flagSet.StringP("secret-access-key", "", "", "S3 secret access key.")
	if err := bind("s3.secret-access-key"); err != nil {
		return err
	}

	flagSet.StringP("session-token", "", "", "S3 session token, for temporary credentials.")
	if err := bind("s3.session-token"); err != nil {
		return err
	}

	flagSet.BoolP("use-path-style", "", true, "Use path-style bucket addressing instead of virtual-hosted.")
	if err := bind("s3.use-path-style"); err != nil {
		return err
	}

	return nil
}

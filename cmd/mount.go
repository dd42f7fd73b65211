package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"
	"strconv"

	"github.com/jacobsa/fuse"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/cfg"
	"github.com/cloudmount/s3fuse/clock"
	"github.com/cloudmount/s3fuse/fs"
	"github.com/cloudmount/s3fuse/metrics"
)

// mountWithArgs wires the backend client pool, metrics, and the FUSE
// Orchestrator together and mounts the filesystem at mountPoint, blocking
// until it is unmounted.
func mountWithArgs(ctx context.Context, mountPoint string, c *cfg.Config) error {
	uid, gid, err := currentUserAndGroup()
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	mh, err := metrics.NewHandle()
	if err != nil {
		return fmt.Errorf("metrics.NewHandle: %w", err)
	}

	pool, err := backend.NewClientPool(backend.ClientPoolConfig{
		Endpoint:        c.S3.Endpoint,
		Region:          c.S3.Region,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		SessionToken:    c.S3.SessionToken,
		Bucket:          c.S3.BucketName,
		UsePathStyle:    c.S3.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("backend.NewClientPool: %w", err)
	}

	serverCfg := &fs.ServerConfig{
		Clock:       clock.RealClock{},
		Pool:        pool,
		CacheMng:    backend.NewInMemoryCacheMng(),
		Config:      c,
		Uid:         uid,
		Gid:         gid,
		MetricHandle: mh,
	}

	slog.Info("creating filesystem server", "bucket", c.S3.BucketName)
	server, err := fs.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("fs.NewServer: %w", err)
	}

	mountCfg := &fuse.MountConfig{
		FSName:     "s3fuse",
		Subtype:    "s3fuse",
		VolumeName: c.S3.BucketName,
	}

	slog.Info("mounting", "mountpoint", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	return mfs.Join(ctx)
}

func currentUserAndGroup() (uid, gid uint32, err error) {
	u, err := user.Current()
	if err != nil {
		return 0, 0, err
	}
	uidInt, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	gidInt, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(uidInt), uint32(gidInt), nil
}

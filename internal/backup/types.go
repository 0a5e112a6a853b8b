package backup

import (
	"context"
	"time"
)

// Config controls periodic database snapshots.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	LocalDir  string
	KeepLast  int
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
}

// Snapshotter copies a consistent image of one database to a file.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(ctx context.Context, dstPath string) error
}

// Source is one database included in every backup run. Name prefixes its
// snapshot files and Ext is their extension.
type Source struct {
	Name  string
	Ext   string
	Store Snapshotter
}

// Uploader uploads one backup artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}

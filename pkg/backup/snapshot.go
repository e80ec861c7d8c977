// Package backup implements the snapshot subsystem: creating timestamped
// captures of remote application state in durable object storage, and the
// non-destructive rollback protocol that restores one.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// snapshotTimeLayout gives second-granularity IDs whose lexicographic order
// equals creation order.
const snapshotTimeLayout = "20060102_150405"

// keyPrefix is where snapshots live inside the bucket.
const keyPrefix = "backups/"

// Snapshot is a point-in-time capture of remote application state. Its ID
// is the creation timestamp; IDs are strictly increasing and unique.
type Snapshot struct {
	// ID is the creation timestamp (YYYYMMDD_HHMMSS).
	ID string `json:"id"`

	// App is the application the snapshot belongs to.
	App string `json:"app"`

	// Bucket and Key locate the artifact in object storage.
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CreatedAt parses the creation time out of the ID.
func (s Snapshot) CreatedAt() (time.Time, error) {
	return time.Parse(snapshotTimeLayout, s.ID)
}

// snapshotKey builds the object key for an app and timestamp.
func snapshotKey(app, id string) string {
	return fmt.Sprintf("%s%s-%s.tar.gz", keyPrefix, app, id)
}

// parseSnapshotKey recovers a Snapshot from an object key. Keys that do not
// match the scheme are rejected.
func parseSnapshotKey(bucket, app, key string) (Snapshot, error) {
	name := strings.TrimPrefix(key, keyPrefix)
	if name == key {
		return Snapshot{}, fmt.Errorf("key %q is not under %s", key, keyPrefix)
	}

	wantPrefix := app + "-"
	if !strings.HasPrefix(name, wantPrefix) || !strings.HasSuffix(name, ".tar.gz") {
		return Snapshot{}, fmt.Errorf("key %q does not match app %q", key, app)
	}

	id := strings.TrimSuffix(strings.TrimPrefix(name, wantPrefix), ".tar.gz")
	if _, err := time.Parse(snapshotTimeLayout, id); err != nil {
		return Snapshot{}, fmt.Errorf("key %q has invalid snapshot id %q", key, id)
	}

	return Snapshot{ID: id, App: app, Bucket: bucket, Key: key}, nil
}

// ObjectStore is the narrow object storage contract the subsystem depends
// on. The minio-backed client satisfies it; tests use an in-memory double.
type ObjectStore interface {
	// EnsureBucket creates the bucket if missing.
	EnsureBucket(ctx context.Context, bucket string) error

	// EnsureRetention installs the snapshot expiry lifecycle rule.
	EnsureRetention(ctx context.Context, bucket string) error

	// Upload stores a local file under key.
	Upload(ctx context.Context, bucket, key, localPath string) error

	// Download retrieves key into a local file.
	Download(ctx context.Context, bucket, key, localPath string) error

	// List returns keys under prefix in lexicographic (= chronological)
	// order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ListSnapshots enumerates the app's snapshots oldest first.
func ListSnapshots(ctx context.Context, store ObjectStore, bucket, app string) ([]Snapshot, error) {
	keys, err := store.List(ctx, bucket, keyPrefix+app+"-")
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		snap, err := parseSnapshotKey(bucket, app, key)
		if err != nil {
			// Foreign objects under the prefix are not ours to touch.
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

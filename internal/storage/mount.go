package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

// MountRelay copies artifacts into a directory shared between hosts, such as
// a synced Drive folder or a network mount.
type MountRelay struct {
	dir string
}

// NewMountRelay creates a relay into dir.
func NewMountRelay(dir string) *MountRelay {
	return &MountRelay{dir: dir}
}

// Put copies localPath to dir/name. The copy lands under a temporary name
// first and is renamed once complete.
func (m *MountRelay) Put(ctx context.Context, localPath, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()
	return writeArtifact(m.dir, name, src)
}

// DirLocator finds artifacts by name in a local or mounted directory.
type DirLocator struct {
	dir string
}

// NewDirLocator creates a locator over dir.
func NewDirLocator(dir string) *DirLocator {
	return &DirLocator{dir: dir}
}

// Locate reports the item's audio if a non-empty file is present. The file
// is used in place and never removed by the transcribe role.
func (d *DirLocator) Locate(ctx context.Context, itemID string) (queue.Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return queue.Artifact{}, false, err
	}
	p := filepath.Join(d.dir, queue.ArtifactName(itemID))
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return queue.Artifact{}, false, nil
	}
	if err != nil {
		return queue.Artifact{}, false, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return queue.Artifact{}, false, nil
	}
	return queue.Artifact{Path: p}, true, nil
}

// Writable checks that files can be created in the relay directory.
func (m *MountRelay) Writable() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(m.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", m.dir, err)
	}
	f.Close()
	return os.Remove(f.Name())
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient relays audio through a shared Google Drive folder. The fetch
// role uploads into it and the transcribe role downloads from it.
type DriveClient struct {
	service  *drive.Service
	folderID string
	workDir  string
}

// NewDriveClient creates a Drive client for folderID. Located files are
// downloaded into workDir.
func NewDriveClient(ctx context.Context, folderID, workDir string, opts ...option.ClientOption) (*DriveClient, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return &DriveClient{service: srv, folderID: folderID, workDir: workDir}, nil
}

// FolderInfo describes the relay folder for diagnostics.
type FolderInfo struct {
	ID       string
	Name     string
	IsFolder bool
	Writable bool
}

// Folder fetches the relay folder's metadata and write capability.
func (dc *DriveClient) Folder(ctx context.Context) (FolderInfo, error) {
	f, err := dc.service.Files.Get(dc.folderID).
		Fields("id, name, mimeType, capabilities/canAddChildren").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return FolderInfo{}, fmt.Errorf("unable to read folder %s: %w", dc.folderID, err)
	}
	info := FolderInfo{ID: f.Id, Name: f.Name, IsFolder: f.MimeType == folderMimeType}
	if f.Capabilities != nil {
		info.Writable = f.Capabilities.CanAddChildren
	}
	return info, nil
}

// Put uploads localPath into the folder as name, replacing an existing file
// of the same name. The local file is left in place.
func (dc *DriveClient) Put(ctx context.Context, localPath, name string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	existing, err := dc.find(ctx, name)
	if err != nil {
		return "", err
	}

	var created *drive.File
	if existing != nil {
		created, err = dc.service.Files.Update(existing.Id, &drive.File{}).
			Media(src).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
	} else {
		created, err = dc.service.Files.Create(&drive.File{Name: name, Parents: []string{dc.folderID}}).
			Media(src).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
	}
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return "drive://" + created.Id, nil
}

// Locate finds the item's audio in the folder and downloads it into the
// working directory.
func (dc *DriveClient) Locate(ctx context.Context, itemID string) (queue.Artifact, bool, error) {
	name := queue.ArtifactName(itemID)
	f, err := dc.find(ctx, name)
	if err != nil || f == nil {
		return queue.Artifact{}, false, err
	}

	resp, err := dc.service.Files.Get(f.Id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return queue.Artifact{}, false, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	path, err := writeArtifact(dc.workDir, name, resp.Body)
	if err != nil {
		return queue.Artifact{}, false, err
	}
	return queue.Artifact{Path: path, Temporary: true}, true, nil
}

func (dc *DriveClient) find(ctx context.Context, name string) (*drive.File, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), escapeQuery(dc.folderID))

	r, err := dc.service.Files.List().
		Q(query).
		Fields("files(id, name, size)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to search for %s: %w", name, err)
	}
	if len(r.Files) == 0 {
		return nil, nil
	}
	return r.Files[0], nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// writeArtifact streams r into dir/name through a temporary file.
func writeArtifact(dir, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move %s into place: %w", name, err)
	}
	return dst, nil
}

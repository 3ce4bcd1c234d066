package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

var supportedExts = map[string]bool{".txt": true, ".md": true}

// FileChunks holds the chunks of one source file.
type FileChunks struct {
	Path   string
	Chunks []domain.Chunk
}

// LoadFolder reads every .txt and .md file under root and chunks it.
// Order follows the directory walk and is not part of the contract.
func LoadFolder(root string, size, overlap int) ([]domain.Chunk, error) {
	files, err := LoadFolderByFile(root, size, overlap)
	if err != nil {
		return nil, err
	}
	var out []domain.Chunk
	for _, f := range files {
		out = append(out, f.Chunks...)
	}
	return out, nil
}

// LoadFolderByFile is LoadFolder grouped per file. Files that yield no chunks are omitted.
// Chunk ids derive from the file name, so two files sharing a name anywhere under
// root are rejected with ErrInvalidArgument.
func LoadFolderByFile(root string, size, overlap int) ([]FileChunks, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge folder %s: %w", domain.ErrInvalidArgument, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: knowledge folder %s is not a directory", domain.ErrInvalidArgument, root)
	}

	var files []FileChunks
	seen := make(map[string]string)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !supportedExts[filepath.Ext(path)] {
			return nil
		}
		name := filepath.Base(path)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s and %s share the chunk id prefix %q",
				domain.ErrInvalidArgument, prev, path, name)
		}
		seen[name] = path
		chunks, err := loadFile(path, size, overlap)
		if err != nil {
			return err
		}
		if len(chunks) > 0 {
			files = append(files, FileChunks{Path: path, Chunks: chunks})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func loadFile(path string, size, overlap int) ([]domain.Chunk, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrInvalidArgument, path, err)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	text := strings.ToValidUTF8(string(data), "")
	pieces := domain.SplitTokens(text, size, overlap)
	if len(pieces) == 0 {
		return nil, nil
	}

	source := filepath.Base(path)
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:       domain.ChunkID(path, i),
			Text:     p,
			Metadata: domain.Metadata{Source: source, Chunk: i, Path: path},
		}
	}
	return chunks, nil
}

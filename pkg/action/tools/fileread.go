// Package tools provides ready-made actions: sandboxed file reads, HTTP GET,
// retrieval-backed search and the finish sentinel.
package tools

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/wilhg/sherpa/pkg/action"
)

// FileRead reads a text file from an fs.FS sandbox.
type FileRead struct {
	action.Base
	fsys fs.FS
}

// NewFileRead returns the fs.read action over fsys.
func NewFileRead(fsys fs.FS, opts ...action.Option) *FileRead {
	return &FileRead{
		Base: action.NewBase("fs.read", "Reads a text file from the sandboxed file system",
			[]action.ArgumentSpec{{Name: "path", Type: "string", Description: "relative path of the file"}}, opts...),
		fsys: fsys,
	}
}

func (t *FileRead) Execute(_ context.Context, args map[string]any) (any, error) {
	if t.fsys == nil {
		return nil, errors.New("no fs configured")
	}
	p, _ := args["path"].(string)
	if p == "" {
		return nil, errors.New("path required")
	}
	if filepath.IsAbs(p) || filepath.Clean(p) != p || strings.Contains(p, "..") {
		return nil, errors.New("invalid path")
	}
	b, err := fs.ReadFile(t.fsys, p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

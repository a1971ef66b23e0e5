// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ContentDisposition is the header that names the file of a part.
const ContentDisposition = "Content-Disposition"

// Dir writes every part that carries a file name into a directory.
// Parts without a file name are discarded.
type Dir struct {
	// Root is the directory parts are written into.
	Root string

	// PerSession places the files of each session in Root/<SessionID>.
	PerSession bool

	// Perm is the file mode of created files (default 0o644).
	Perm os.FileMode
}

var _ Handler = (*Dir)(nil)

// NewDir creates a Dir handler rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root, Perm: 0o644}
}

// Sink opens the file named by the part's Content-Disposition header.
func (d *Dir) Sink(ctx context.Context, hctx *Context, hdr Header) (io.WriteCloser, error) {
	name := Filename(hdr)
	if name == "" {
		return nil, nil
	}

	dir := d.Root
	if d.PerSession && hctx != nil && hctx.SessionID != "" {
		dir = filepath.Join(dir, hctx.SessionID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	perm := d.Perm
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open part file: %w", err)
	}
	return f, nil
}

// Filename returns the base name given by the filename parameter of the
// Content-Disposition header, or "" when there is none. Directory components
// are stripped so a part can never escape the target directory.
func Filename(hdr Header) string {
	disp := hdr.Get(ContentDisposition)
	if disp == "" {
		return ""
	}

	var name string
	if _, params, err := mime.ParseMediaType(disp); err == nil {
		name = params["filename"]
	} else {
		name = namedValue(disp, ";", "filename")
	}

	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	switch name {
	case "", ".", "/":
		return ""
	}
	return name
}

// namedValue returns the value of name in a list such as "a=1; b=2",
// unquoting it if needed.
func namedValue(s, sep, name string) string {
	for _, pair := range strings.Split(s, sep) {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return ""
}

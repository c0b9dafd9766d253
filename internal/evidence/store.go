// store.go
//
// Evidence file storage for qatrack demands
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package evidence maps demands to their evidence folders on disk.
package evidence

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Sanitize strips diacritics, lowercases and collapses every run of
// non-alphanumeric characters into one underscore.
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return nonAlnum.ReplaceAllString(strings.ToLower(stripped), "_")
}

// Folder identifies the demand an evidence folder belongs to.
type Folder struct {
	ID        string
	DisplayID string
	Name      string
	// Dir is the folder name recorded for the demand, if any.
	Dir string
	// Taken reports whether a folder name belongs to another demand.
	Taken func(name string) bool
}

func (f Folder) taken(name string) bool {
	return f.Taken != nil && f.Taken(name)
}

// DirName is the folder name new evidence is written to.
func (f Folder) DirName() string {
	return Sanitize(f.DisplayID) + "_" + Sanitize(f.Name)
}

// legacyName is the folder name used before names were part of it.
func (f Folder) legacyName() string {
	return Sanitize(f.DisplayID) + "_" + f.ID
}

// Store keeps evidence files under BaseDir, one folder per demand.
type Store struct {
	BaseDir string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

func (s *Store) isDir(name string) bool {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) {
		return false
	}
	info, err := os.Stat(filepath.Join(s.BaseDir, name))
	return err == nil && info.IsDir()
}

// ResolveDirectory returns the existing folder of a demand, or "" when none
// exists. The recorded folder wins, then the current name unless another
// demand owns it, then the legacy and id-only forms.
func (s *Store) ResolveDirectory(f Folder) (string, error) {
	if s.isDir(f.Dir) {
		return filepath.Join(s.BaseDir, f.Dir), nil
	}
	if name := f.DirName(); s.isDir(name) && !f.taken(name) {
		return filepath.Join(s.BaseDir, name), nil
	}
	for _, name := range []string{f.legacyName(), f.ID} {
		if s.isDir(name) {
			return filepath.Join(s.BaseDir, name), nil
		}
	}

	if f.ID == "" {
		return "", nil
	}
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), "_"+f.ID) {
			return filepath.Join(s.BaseDir, e.Name()), nil
		}
	}
	return "", nil
}

// EnsureDirectory returns the demand's folder, creating it under the current
// naming scheme when none exists. When another demand owns the current name
// the folder is created as {displayId}_{id}.
func (s *Store) EnsureDirectory(f Folder) (string, error) {
	dir, err := s.ResolveDirectory(f)
	if err != nil || dir != "" {
		return dir, err
	}
	name := f.DirName()
	if f.taken(name) {
		name = f.legacyName()
	}
	dir = filepath.Join(s.BaseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence directory: %w", err)
	}
	return dir, nil
}

// StoredFilename builds a collision free filename for an upload.
func StoredFilename(original string, now time.Time) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)

	ext := strings.ToLower(filepath.Ext(original))
	base := Sanitize(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	base = strings.Trim(base, "_")
	if base == "" {
		base = "file"
	}
	ext = nonAlnum.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext != "" {
		ext = "." + ext
	}
	return fmt.Sprintf("%d-%s-%s%s", now.UnixMilli(), hex.EncodeToString(suffix), base, ext)
}

// Save writes r into the demand's folder and returns the stored filename
// and the number of bytes written.
func (s *Store) Save(f Folder, original string, r io.Reader) (string, int64, error) {
	dir, err := s.EnsureDirectory(f)
	if err != nil {
		return "", 0, err
	}

	filename := StoredFilename(original, time.Now())
	out, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, filename))
		return "", 0, err
	}
	return filename, n, nil
}

// Path returns the location of a stored file, or "" when it is missing.
func (s *Store) Path(f Folder, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", nil
	}
	dir, err := s.ResolveDirectory(f)
	if err != nil || dir == "" {
		return "", err
	}
	p := filepath.Join(dir, filename)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return p, nil
}

// Remove deletes one stored file. A missing file is not an error.
func (s *Store) Remove(f Folder, filename string) error {
	p, err := s.Path(f, filename)
	if err != nil || p == "" {
		return err
	}
	return os.Remove(p)
}

// RemoveDirectory deletes the demand's folder and everything in it. A folder
// another demand owns is left alone.
func (s *Store) RemoveDirectory(f Folder) error {
	dir, err := s.ResolveDirectory(f)
	if err != nil || dir == "" {
		return err
	}
	if f.taken(filepath.Base(dir)) {
		return nil
	}
	return os.RemoveAll(dir)
}

// Package importer provides ready-made importers for use with
// compiler.CompileOptions.
package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/maxkra/sasshost/compiler"
	"github.com/maxkra/sasshost/errors"
)

// Filesystem resolves loads against an ordered list of load paths, with
// the stylesheet conventions for partials and index files: a load of "a/b"
// tries b.scss, b.sass, b.css, their partial forms (_b.scss, ...), and
// b/_index.scss-style index files, in that order, under each load path.
//
// Allow optionally restricts which files may be served, as doublestar
// patterns matched against the path relative to the load path that
// resolved it (e.g. "themes/**/*.scss"). An empty Allow list serves
// everything under the load paths.
type Filesystem struct {
	LoadPaths []string
	Allow     []string
}

const fileScheme = "file://"

// Canonicalize resolves url to a file URL, or returns "" when no load path
// contains a matching file.
func (f *Filesystem) Canonicalize(_ context.Context, url string, _ bool) (string, error) {
	stem := strings.TrimPrefix(url, fileScheme)
	if filepath.IsAbs(stem) {
		return f.resolve(filepath.Dir(stem), filepath.Base(stem))
	}
	for _, lp := range f.LoadPaths {
		found, err := f.resolve(lp, stem)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

func (f *Filesystem) resolve(root, stem string) (string, error) {
	for _, candidate := range candidatePaths(stem) {
		full := filepath.Join(root, candidate)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		ok, err := f.allowed(root, full)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		abs, err := filepath.Abs(full)
		if err != nil {
			return "", errors.Wrapf(err, "resolving %s", full)
		}
		return fileScheme + filepath.ToSlash(abs), nil
	}
	return "", nil
}

// candidatePaths lists the files a load of stem may refer to, most
// specific first.
func candidatePaths(stem string) []string {
	dir, name := filepath.Dir(stem), filepath.Base(stem)
	if ext := filepath.Ext(name); ext == ".scss" || ext == ".sass" || ext == ".css" {
		return []string{
			filepath.Join(dir, name),
			filepath.Join(dir, "_"+name),
		}
	}
	var out []string
	for _, ext := range []string{".scss", ".sass", ".css"} {
		out = append(out, filepath.Join(dir, name+ext))
	}
	for _, ext := range []string{".scss", ".sass", ".css"} {
		out = append(out, filepath.Join(dir, "_"+name+ext))
	}
	for _, index := range []string{"_index.scss", "_index.sass", "index.scss", "index.sass"} {
		out = append(out, filepath.Join(dir, name, index))
	}
	return out
}

func (f *Filesystem) allowed(root, path string) (bool, error) {
	if len(f.Allow) == 0 {
		return true, nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, errors.Wrapf(err, "relativizing %s", path)
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range f.Allow {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, errors.Wrapf(err, "bad allow pattern %q", pattern)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Load reads a canonical file URL previously produced by Canonicalize.
func (f *Filesystem) Load(_ context.Context, canonicalURL string) (*compiler.ImporterResult, error) {
	path := strings.TrimPrefix(canonicalURL, fileScheme)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", canonicalURL)
	}
	return &compiler.ImporterResult{
		Contents: string(data),
		Syntax:   compiler.SyntaxForPath(path),
	}, nil
}

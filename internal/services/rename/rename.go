// Package rename rewrites media file names from resolved metadata.
package rename

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shuttle/internal/fileutil"
	"shuttle/internal/metadata"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// Renamer builds canonical file names: "Title (Year)" for movies and
// "Title SxxEyy" for series. Episodes keep their own identity; no
// uniqueness suffix is ever added to series files.
type Renamer struct {
	titler cases.Caser
}

// New constructs a renamer.
func New() *Renamer {
	return &Renamer{titler: cases.Title(language.English)}
}

// Rename moves the file to its canonical name in the same directory and
// returns the new path. A name that is already canonical is returned
// unchanged.
func (r *Renamer) Rename(ctx context.Context, path string, meta metadata.Resolved) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return path, nil
	}

	ext := filepath.Ext(path)
	base := r.titler.String(title)

	var name string
	switch {
	case meta.IsSeries && meta.Season > 0 && meta.Episode > 0:
		code := fmt.Sprintf("S%02dE%02d", meta.Season, meta.Episode)
		if episode := episodeName(meta.EpisodeTitle); episode != "" {
			name = fmt.Sprintf("%s %s - %s%s", base, code, episode, ext)
		} else {
			name = fmt.Sprintf("%s %s%s", base, code, ext)
		}
	case !meta.IsSeries && meta.Year > 0:
		name = fmt.Sprintf("%s (%d)%s", base, meta.Year, ext)
	default:
		name = base + ext
	}

	dir := filepath.Dir(path)
	target := filepath.Join(dir, name)
	if target == path {
		return path, nil
	}

	if !meta.IsSeries {
		target = uniquePath(target)
	} else if _, err := os.Stat(target); err == nil {
		return "", services.Wrap(services.ErrValidation, string(queue.PhaseOrganizing), "rename", fmt.Sprintf("episode %q already exists", name), nil)
	}

	if err := fileutil.MoveFile(path, target); err != nil {
		return "", services.Wrap(services.ErrValidation, string(queue.PhaseOrganizing), "rename", fmt.Sprintf("move %q", filepath.Base(path)), err)
	}
	return target, nil
}

// episodeName makes an enriched episode title safe to embed in a file
// name.
func episodeName(title string) string {
	title = strings.TrimSpace(title)
	return strings.ReplaceAll(title, "/", "-")
}

// uniquePath appends a numeric suffix until the movie name is free.
func uniquePath(target string) string {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

var _ services.Renamer = (*Renamer)(nil)

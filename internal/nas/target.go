package nas

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"shuttle/internal/config"
	"shuttle/internal/metadata"
)

// Kind distinguishes local directories from network shares.
type Kind string

const (
	KindLocal Kind = "local"
	KindNAS   Kind = "nas"
)

// Target is one storage destination. Each target carries its own category
// folder table because two physical targets may label the same category
// differently.
type Target struct {
	Name            string
	Kind            Kind
	Path            string
	Host            string
	Share           string
	MountPoint      string
	CategoryFolders map[metadata.Category]string
}

// TargetFromConfig converts a config entry into a runtime target.
func TargetFromConfig(entry config.Target) (Target, error) {
	target := Target{
		Name:       entry.Name,
		Kind:       Kind(entry.Kind),
		Path:       entry.Path,
		Host:       entry.Host,
		Share:      entry.Share,
		MountPoint: entry.MountPoint,
	}
	if len(entry.CategoryFolders) > 0 {
		target.CategoryFolders = make(map[metadata.Category]string, len(entry.CategoryFolders))
		for key, folder := range entry.CategoryFolders {
			category, ok := metadata.ParseCategory(key)
			if !ok {
				return Target{}, fmt.Errorf("target %s: unknown category %q", entry.Name, key)
			}
			target.CategoryFolders[category] = folder
		}
	}
	return target, nil
}

// Root returns the directory under which category folders live.
func (t Target) Root() string {
	if t.Kind == KindNAS {
		return t.MountPoint
	}
	return t.Path
}

// CategoryFolder returns this target's folder name for a category,
// falling back to the category's own spelling when unmapped.
func (t Target) CategoryFolder(category metadata.Category) string {
	if folder, ok := t.CategoryFolders[category]; ok && strings.TrimSpace(folder) != "" {
		return folder
	}
	return string(category)
}

// Device returns the network source string mounted for a NAS target.
func (t Target) Device() string {
	return "//" + t.Host + "/" + t.Share
}

// Mounted reports whether the target's mount point currently appears in
// the mount table. Local targets are always considered mounted.
func (t Target) Mounted() (bool, error) {
	if t.Kind != KindNAS {
		return true, nil
	}
	return mountPointActive(t.MountPoint)
}

// procMountsPath is a variable so tests can point it at a fixture.
var procMountsPath = "/proc/mounts"

func mountPointActive(mountPoint string) (bool, error) {
	mountPoint = strings.TrimRight(mountPoint, "/")
	if mountPoint == "" {
		return false, nil
	}
	file, err := os.Open(procMountsPath)
	if err != nil {
		return false, fmt.Errorf("read mount table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if strings.TrimRight(fields[1], "/") == mountPoint {
			return true, nil
		}
	}
	return false, scanner.Err()
}

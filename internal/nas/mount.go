package nas

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// runMountCommand executes the system mount command. Package-level so
// tests can replace it with a stub.
var runMountCommand = func(ctx context.Context, device, mountPoint string) error {
	return exec.CommandContext(ctx, "mount", device, mountPoint).Run()
}

// MountManager serializes mount attempts per target: an in-process mutex
// for concurrent jobs plus a flock file for concurrent daemons. Jobs
// targeting different NAS names proceed independently.
type MountManager struct {
	lockDir string
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMountManager builds a mount manager keeping its lock files in lockDir.
func NewMountManager(lockDir string, logger *slog.Logger) *MountManager {
	return &MountManager{
		lockDir: lockDir,
		logger:  logging.NewComponentLogger(logger, "mount"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureMounted checks the target's mount state and performs at most one
// mount attempt. Failures are reported as ErrMount, never silently
// retried; the uploading phase treats them as distinct from transfer I/O.
func (m *MountManager) EnsureMounted(ctx context.Context, target Target) error {
	if target.Kind != KindNAS {
		return nil
	}

	lock := m.targetLock(target.Name)
	lock.Lock()
	defer lock.Unlock()

	fileLock := flock.New(m.lockPath(target.Name))
	if err := fileLock.Lock(); err != nil {
		return services.Wrap(services.ErrMount, "", "mount lock", target.Name, err)
	}
	defer func() { _ = fileLock.Unlock() }()

	mounted, err := target.Mounted()
	if err != nil {
		return services.Wrap(services.ErrMount, "", "mount probe", target.Name, err)
	}
	if mounted {
		return nil
	}

	if err := os.MkdirAll(target.MountPoint, 0o755); err != nil {
		return services.Wrap(services.ErrMount, "", "create mount point", target.MountPoint, err)
	}

	m.logger.Info("mounting storage target",
		logging.String(logging.FieldTarget, target.Name),
		logging.String("device", target.Device()),
		logging.String("mount_point", target.MountPoint),
	)
	if err := runMountCommand(ctx, target.Device(), target.MountPoint); err != nil {
		return services.Wrap(services.ErrMount, "", "mount", fmt.Sprintf("%s at %s", target.Device(), target.MountPoint), err)
	}

	mounted, err = target.Mounted()
	if err != nil {
		return services.Wrap(services.ErrMount, "", "mount verify", target.Name, err)
	}
	if !mounted {
		return services.Wrap(services.ErrMount, "", "mount", target.Name+" not present after mount", nil)
	}
	return nil
}

func (m *MountManager) targetLock(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(name))
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

func (m *MountManager) lockPath(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return filepath.Join(m.lockDir, "mount-"+name+".lock")
}

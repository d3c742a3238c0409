// Package kern assembles a kernel from its configuration: the open file
// table, the process manager, the thread scheduler and the system call
// dispatcher.
package kern

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"os161/pkg/addrspace"
	"os161/pkg/config"
	"os161/pkg/console"
	"os161/pkg/filetable"
	"os161/pkg/process"
	"os161/pkg/syscalls"
	"os161/pkg/thread"
	"os161/pkg/vfs"
	"os161/pkg/vfs/diskfs"
	"os161/pkg/vfs/memfs"
)

// User memory given to a booted process.
const (
	DataBase  = 0x10000000
	DataSize  = 16 * 1024
	StackSize = 16 * 1024
	StackTop  = 0x80000000
	StackBase = StackTop - StackSize
)

// Kernel is one booted kernel instance.
type Kernel struct {
	// ID identifies this boot.
	ID string

	Config   config.Config
	Store    vfs.FileSystem
	Files    *filetable.Table
	Procs    *process.Manager
	Sched    *thread.GoScheduler
	Syscalls *syscalls.Dispatcher
	Memory   *addrspace.Budget

	logger *slog.Logger
}

// New assembles a kernel over the given file store and console.
func New(cfg config.Config, store vfs.FileSystem, cons console.Console, logger *slog.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	k := &Kernel{
		ID:     uuid.NewString(),
		Config: cfg,
		Store:  store,
		Memory: addrspace.NewBudget(cfg.Limits.AddrspaceBudget),
	}
	k.logger = logger.With(slog.String("boot_id", k.ID))

	k.Files = filetable.New(store, cfg.Limits.SystemOpenMax(), k.logger)
	k.Sched = thread.NewScheduler(cfg.Limits.MaxThreads, k.logger)
	k.Procs = process.NewManager(
		process.NewRegistry(cfg.Limits.PIDMax),
		k.Files,
		k.Sched,
		process.Config{
			OpenMax:  cfg.Limits.ProcessOpenMax,
			AutoReap: !cfg.Options.Waitpid,
		},
		k.logger,
	)
	k.Syscalls = syscalls.New(k.Procs, cons, syscalls.Options{
		File:    cfg.Options.File,
		Fork:    cfg.Options.Fork,
		Waitpid: cfg.Options.Waitpid,
	}, k.ID, k.logger)

	k.logger.Info("kernel assembled",
		slog.Int("process_open_max", cfg.Limits.ProcessOpenMax),
		slog.Int("system_open_max", cfg.Limits.SystemOpenMax()),
		slog.Int("pid_max", cfg.Limits.PIDMax))
	return k, nil
}

// OpenStore returns the file store named by cfg: a host directory when
// Root is set, otherwise an empty in-memory store.
func OpenStore(cfg config.StoreConfig) (vfs.FileSystem, error) {
	if cfg.Root == "" {
		return memfs.New(), nil
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", cfg.Root)
	}
	return diskfs.New(cfg.Root), nil
}

// Boot creates the first process with a data and a stack region and runs
// entry on it.
func (k *Kernel) Boot(ctx context.Context, name string, entry func(t *thread.Thread)) (*process.Process, error) {
	as := addrspace.New(k.Memory)
	if err := as.DefineRegion(DataBase, DataSize); err != nil {
		return nil, err
	}
	if err := as.DefineRegion(StackBase, StackSize); err != nil {
		as.Destroy()
		return nil, err
	}

	p, err := k.Procs.Boot(ctx, name, as, entry)
	if err != nil {
		return nil, err
	}
	k.logger.Info("booted", slog.Int("pid", p.PID), slog.String("name", name))
	return p, nil
}

// Wait blocks until every kernel thread has exited.
func (k *Kernel) Wait() {
	k.Sched.Wait()
}

// Processes lists the processes not yet reaped.
func (k *Kernel) Processes() []process.Info {
	return k.Procs.Registry().Snapshot()
}

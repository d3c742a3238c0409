package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"os161/pkg/kern"
	"os161/pkg/kern/errno"
	"os161/pkg/thread"
	"os161/pkg/vfs"
)

type scenario struct {
	about string
	run   func(ctx context.Context, k *kern.Kernel, out io.Writer) error
}

var scenarios = map[string]scenario{
	"shared-offset": {"child writes through an inherited descriptor; parent sees the offset move", sharedOffset},
	"wait-status":   {"parent collects a child's exit status, then fails to collect it again", waitStatus},
	"exhaust-files": {"processes open files until the system-wide table is full", exhaustFiles},
	"exhaust-fds":   {"one process opens files until its descriptor table is full", exhaustFDs},
	"stress":        {"many processes fork, exit and wait concurrently", stress},
}

// bootInit runs entry as the init process and waits for every thread. The
// error entry returns is the scenario's result.
func bootInit(ctx context.Context, k *kern.Kernel, entry func(t *thread.Thread) error) error {
	var err error
	if _, bootErr := k.Boot(ctx, "init", func(t *thread.Thread) {
		err = entry(t)
	}); bootErr != nil {
		return bootErr
	}
	k.Wait()
	return err
}

func sharedOffset(ctx context.Context, k *kern.Kernel, out io.Writer) error {
	d := k.Syscalls
	return bootInit(ctx, k, func(t *thread.Thread) error {
		fd, err := d.Open(t, "/shared", vfs.O_RDWR|vfs.O_CREATE|vfs.O_TRUNC, 0644)
		if err != nil {
			return err
		}

		tf := &thread.Trapframe{Resume: func(ct *thread.Thread, tf *thread.Trapframe) {
			code := 0
			if _, err := d.Write(ct, fd, []byte("0123456789"), 10); err != nil {
				code = errno.Code(err)
			}
			d.Exit(ct, code)
		}}
		pid, err := d.Fork(t, tf)
		if err != nil {
			return err
		}

		var status int
		if _, err := d.Waitpid(t, pid, &status, 0); err != nil {
			return err
		}
		if status != 0 {
			return fmt.Errorf("child write failed with code %d", status)
		}

		pos, err := d.Lseek(t, fd, 0, vfs.SEEK_CUR)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "child %d wrote 10 bytes; offset seen by parent: %d\n", pid, pos)
		if pos != 10 {
			return fmt.Errorf("offset %d, want 10", pos)
		}
		return d.Close(t, fd)
	})
}

func waitStatus(ctx context.Context, k *kern.Kernel, out io.Writer) error {
	d := k.Syscalls
	return bootInit(ctx, k, func(t *thread.Thread) error {
		tf := &thread.Trapframe{Resume: func(ct *thread.Thread, tf *thread.Trapframe) {
			d.Exit(ct, 42)
		}}
		pid, err := d.Fork(t, tf)
		if err != nil {
			return err
		}

		var status int
		if _, err := d.Waitpid(t, pid, &status, 0); err != nil {
			return err
		}
		fmt.Fprintf(out, "waitpid(%d) = %d\n", pid, status)
		if status != 42 {
			return fmt.Errorf("status %d, want 42", status)
		}

		_, err = d.Waitpid(t, pid, &status, 0)
		fmt.Fprintf(out, "second waitpid(%d): %v\n", pid, err)
		if !errors.Is(err, errno.ErrNoSuchChild) {
			return fmt.Errorf("second wait returned %v", err)
		}
		return nil
	})
}

// openUntilFull opens /data until an open fails and returns how many
// succeeded along with the failure.
func openUntilFull(k *kern.Kernel, t *thread.Thread) (int, error) {
	for n := 0; ; n++ {
		if _, err := k.Syscalls.Open(t, "/data", vfs.O_RDWR|vfs.O_CREATE, 0644); err != nil {
			return n, err
		}
	}
}

func exhaustFDs(ctx context.Context, k *kern.Kernel, out io.Writer) error {
	return bootInit(ctx, k, func(t *thread.Thread) error {
		before := k.Files.InUse()
		n, err := openUntilFull(k, t)
		fmt.Fprintf(out, "opened %d descriptors, then: %v\n", n, err)
		if !errors.Is(err, errno.ErrDescriptorTableExhausted) {
			return fmt.Errorf("open failed with %v", err)
		}
		if leaked := k.Files.InUse() - before - n; leaked != 0 {
			return fmt.Errorf("%d open file entries leaked", leaked)
		}
		return nil
	})
}

type openReport struct {
	pid    int
	opened int
	err    error
}

func exhaustFiles(ctx context.Context, k *kern.Kernel, out io.Writer) error {
	d := k.Syscalls
	err := bootInit(ctx, k, func(t *thread.Thread) error {
		reports := make(chan openReport)
		release := make(chan struct{})

		var children []int
		defer func() {
			close(release)
			for _, pid := range children {
				d.Waitpid(t, pid, nil, 0)
			}
		}()

		for {
			tf := &thread.Trapframe{Resume: func(ct *thread.Thread, tf *thread.Trapframe) {
				pid, _ := d.Getpid(ct)
				n, err := openUntilFull(k, ct)
				reports <- openReport{pid: pid, opened: n, err: err}
				<-release
				d.Exit(ct, 0)
			}}
			pid, err := d.Fork(t, tf)
			if err != nil {
				return err
			}
			children = append(children, pid)

			r := <-reports
			fmt.Fprintf(out, "pid %d opened %d files, then: %v\n", r.pid, r.opened, r.err)
			switch {
			case errors.Is(r.err, errno.ErrFileTableExhausted):
				fmt.Fprintf(out, "system table full at %d entries\n", k.Files.InUse())
				return nil
			case !errors.Is(r.err, errno.ErrDescriptorTableExhausted):
				return r.err
			}
		}
	})
	if err != nil {
		return err
	}
	if n := k.Files.InUse(); n != 0 {
		return fmt.Errorf("%d entries still open after every process exited", n)
	}
	return nil
}

func stress(ctx context.Context, k *kern.Kernel, out io.Writer) error {
	procs := stressProcs
	if procs <= 0 {
		procs = 1
	}

	limit := rate.Inf
	if stressRate > 0 {
		limit = rate.Limit(stressRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < procs; i++ {
		if err := limiter.Wait(ctx); err != nil {
			g.Go(func() error { return err })
			break
		}
		want := i % 256
		g.Go(func() error {
			done := make(chan error, 1)
			_, err := k.Boot(ctx, fmt.Sprintf("worker-%d", i), func(t *thread.Thread) {
				done <- forkAndWait(k, t, want)
			})
			if err != nil {
				return err
			}
			return <-done
		})
	}
	err := g.Wait()
	k.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d processes forked, exited and were reaped\n", procs)
	logger.Debug("stress finished", slog.Int("procs", procs), slog.Int("left", len(k.Processes())))
	return nil
}

func forkAndWait(k *kern.Kernel, t *thread.Thread, code int) error {
	d := k.Syscalls
	tf := &thread.Trapframe{Resume: func(ct *thread.Thread, tf *thread.Trapframe) {
		d.Exit(ct, code)
	}}
	pid, err := d.Fork(t, tf)
	if err != nil {
		return err
	}
	var status int
	if _, err := d.Waitpid(t, pid, &status, 0); err != nil {
		return err
	}
	if status != code {
		return fmt.Errorf("pid %d exited %d, want %d", pid, status, code)
	}
	return nil
}

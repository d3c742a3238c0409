/*
Package process implements the process lifecycle of the kernel: fork, exit
and waitpid, on top of the open file table and per-process descriptor
tables.

# Process States

A process moves through three states, each entered once:

  - Running: the process has at least one thread and has not exited
  - Zombie: the process has exited; its status waits to be collected
  - Reaped: the status has been collected and the PID is free again

A zombie stays in the Registry until it is waited for, so a late waiter
still gets the status.

# Usage

Booting the first process and forking from it:

	m := process.NewManager(process.NewRegistry(256), files, sched,
		process.Config{OpenMax: 16}, logger)

	p, err := m.Boot(ctx, "init", as, func(t *thread.Thread) {
		pid, err := m.Fork(t, tf)
		if err != nil {
			m.Exit(t, 1)
		}
		status, _ := m.Wait(t, pid)
		m.Exit(t, status)
	})

The child resumes through tf.Resume with a zero result in tf.V0.
*/
package process

package thread

// Trapframe is the user register state saved on entry to the kernel.
//
// On a system call V0 holds the call number and A0-A3 the arguments. On
// return V0 (and V1 for 64-bit results) holds the result and A3 is zero on
// success or one on failure, in which case V0 holds the error code.
type Trapframe struct {
	V0, V1         uint32
	A0, A1, A2, A3 uint32
	SP             uint32
	EPC            uint32

	// Resume continues user execution from the saved state. It stands in
	// for the user-mode return from the trap.
	Resume func(t *Thread, tf *Trapframe)
}

// Clone returns a copy of the saved state.
func (tf *Trapframe) Clone() *Trapframe {
	dup := *tf
	return &dup
}

// SetResult stores a successful syscall result and steps past the syscall
// instruction.
func (tf *Trapframe) SetResult(v uint32) {
	tf.V0 = v
	tf.A3 = 0
	tf.EPC += 4
}

// SetResult64 stores a 64-bit result, high word in V0 and low word in V1.
func (tf *Trapframe) SetResult64(v uint64) {
	tf.V1 = uint32(v)
	tf.SetResult(uint32(v >> 32))
}

// SetError stores a failed syscall's error code and steps past the syscall
// instruction.
func (tf *Trapframe) SetError(code int) {
	tf.V0 = uint32(code)
	tf.A3 = 1
	tf.EPC += 4
}

// EnterForkedProcess resumes a forked child from its copy of the parent's
// trapframe, returning zero from fork.
func EnterForkedProcess(t *Thread, tf *Trapframe) {
	tf.SetResult(0)
	if tf.Resume != nil {
		tf.Resume(t, tf)
	}
}

package syscalls

import (
	"encoding/binary"
	"errors"
	"os"

	"os161/pkg/addrspace"
	"os161/pkg/kern/errno"
	"os161/pkg/process"
	"os161/pkg/thread"
	"os161/pkg/vfs"
)

// System call numbers, as placed in V0 by user code.
const (
	SysFork    = 0
	SysExit    = 3
	SysWaitpid = 4
	SysGetpid  = 5
	SysGetppid = 6
	SysOpen    = 45
	SysDup2    = 48
	SysClose   = 49
	SysRead    = 50
	SysWrite   = 55
	SysLseek   = 59
)

// Open flags as passed by user code.
const (
	userRdonly = 0
	userWronly = 1
	userRdwr   = 2
	userCreat  = 4
	userExcl   = 8
	userTrunc  = 16
	userAppend = 32

	userAccmode = 3
)

// whenceOffset is where lseek's whence sits on the user stack; the
// 64-bit offset takes A2 and A3.
const whenceOffset = 16

// Syscall decodes the call saved in tf, runs it and stores the result or
// error code back into tf. For _exit it does not return.
func (d *Dispatcher) Syscall(t *thread.Thread, tf *thread.Trapframe) {
	var (
		ret uint32
		err error
	)

	switch tf.V0 {
	case SysFork:
		var pid int
		pid, err = d.Fork(t, tf)
		ret = uint32(pid)
	case SysExit:
		d.Exit(t, int(int32(tf.A0)))
	case SysWaitpid:
		ret, err = d.sysWaitpid(t, tf)
	case SysGetpid:
		var pid int
		pid, err = d.Getpid(t)
		ret = uint32(pid)
	case SysGetppid:
		var pid int
		pid, err = d.Getppid(t)
		ret = uint32(pid)
	case SysOpen:
		ret, err = d.sysOpen(t, tf)
	case SysDup2:
		var fd int
		fd, err = d.Dup2(t, int(int32(tf.A0)), int(int32(tf.A1)))
		ret = uint32(fd)
	case SysClose:
		err = d.Close(t, int(int32(tf.A0)))
	case SysRead:
		ret, err = d.sysRead(t, tf)
	case SysWrite:
		ret, err = d.sysWrite(t, tf)
	case SysLseek:
		var pos int64
		if pos, err = d.sysLseek(t, tf); err == nil {
			tf.SetResult64(uint64(pos))
			return
		}
	default:
		err = errno.ErrNotSupported
	}

	if err != nil {
		tf.SetError(errno.Code(err))
		return
	}
	tf.SetResult(ret)
}

func memory(t *thread.Thread) (*addrspace.AddressSpace, error) {
	p := process.Of(t)
	if p == nil {
		return nil, process.ErrNoProcess
	}
	as := p.AddressSpace()
	if as == nil {
		return nil, errno.ErrFault
	}
	return as, nil
}

func userFault(err error) error {
	if errors.Is(err, addrspace.ErrBadAddress) {
		return errno.ErrFault
	}
	return err
}

func copyin(as *addrspace.AddressSpace, addr uint32, n int) ([]byte, error) {
	if addr == 0 {
		return nil, errno.ErrFault
	}
	b, err := as.Load(addr, n)
	if err != nil {
		return nil, userFault(err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func copyout(as *addrspace.AddressSpace, addr uint32, b []byte) error {
	if addr == 0 {
		return errno.ErrFault
	}
	return userFault(as.Store(addr, b))
}

// copyinstr reads a NUL-terminated string of at most limit bytes.
func copyinstr(as *addrspace.AddressSpace, addr uint32, limit int) (string, error) {
	var s []byte
	for i := 0; i < limit; i++ {
		b, err := copyin(as, addr+uint32(i), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(s), nil
		}
		s = append(s, b[0])
	}
	return "", errno.ErrInvalid
}

func openFlags(user uint32) int {
	var flags int
	switch user & userAccmode {
	case userRdonly:
		flags = vfs.O_RDONLY
	case userWronly:
		flags = vfs.O_WRONLY
	default:
		flags = vfs.O_RDWR
	}
	for bit, f := range map[uint32]int{
		userCreat:  vfs.O_CREATE,
		userExcl:   vfs.O_EXCL,
		userTrunc:  vfs.O_TRUNC,
		userAppend: vfs.O_APPEND,
	} {
		if user&bit != 0 {
			flags |= f
		}
	}
	return flags
}

func fileMode(perm uint32) os.FileMode {
	return os.FileMode(perm & 0777)
}

func (d *Dispatcher) sysOpen(t *thread.Thread, tf *thread.Trapframe) (uint32, error) {
	as, err := memory(t)
	if err != nil {
		return 0, err
	}
	path, err := copyinstr(as, tf.A0, vfs.MaxPathLength)
	if err != nil {
		return 0, err
	}
	fd, err := d.Open(t, path, openFlags(tf.A1), fileMode(tf.A2))
	return uint32(fd), err
}

func (d *Dispatcher) sysRead(t *thread.Thread, tf *thread.Trapframe) (uint32, error) {
	as, err := memory(t)
	if err != nil {
		return 0, err
	}
	n := int(int32(tf.A2))
	if n < 0 {
		return 0, errno.ErrInvalid
	}
	// Checks that the whole buffer is mapped before anything is consumed.
	buf, err := copyin(as, tf.A1, n)
	if err != nil {
		return 0, err
	}
	got, err := d.Read(t, int(int32(tf.A0)), buf, n)
	if err != nil {
		return 0, err
	}
	if err := copyout(as, tf.A1, buf[:got]); err != nil {
		return 0, err
	}
	return uint32(got), nil
}

func (d *Dispatcher) sysWrite(t *thread.Thread, tf *thread.Trapframe) (uint32, error) {
	as, err := memory(t)
	if err != nil {
		return 0, err
	}
	n := int(int32(tf.A2))
	if n < 0 {
		return 0, errno.ErrInvalid
	}
	buf, err := copyin(as, tf.A1, n)
	if err != nil {
		return 0, err
	}
	put, err := d.Write(t, int(int32(tf.A0)), buf, n)
	return uint32(put), err
}

func (d *Dispatcher) sysLseek(t *thread.Thread, tf *thread.Trapframe) (int64, error) {
	as, err := memory(t)
	if err != nil {
		return 0, err
	}
	w, err := copyin(as, tf.SP+whenceOffset, 4)
	if err != nil {
		return 0, err
	}
	offset := int64(uint64(tf.A2)<<32 | uint64(tf.A3))
	whence := int(int32(binary.BigEndian.Uint32(w)))
	return d.Lseek(t, int(int32(tf.A0)), offset, whence)
}

func (d *Dispatcher) sysWaitpid(t *thread.Thread, tf *thread.Trapframe) (uint32, error) {
	var as *addrspace.AddressSpace
	if tf.A1 != 0 {
		var err error
		if as, err = memory(t); err != nil {
			return 0, err
		}
		if _, err := copyin(as, tf.A1, 4); err != nil {
			return 0, err
		}
	}

	var status int
	pid, err := d.Waitpid(t, int(int32(tf.A0)), &status, int(tf.A2))
	if err != nil {
		return 0, err
	}
	if as != nil {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(status)))
		if err := copyout(as, tf.A1, b[:]); err != nil {
			return 0, err
		}
	}
	return uint32(pid), nil
}

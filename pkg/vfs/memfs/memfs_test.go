package memfs

import (
	"errors"
	"io"
	"testing"

	vfs "os161/pkg/vfs"
)

func TestCreateAndOpen(t *testing.T) {
	fs := New()

	file, err := fs.OpenFile("/test.txt", vfs.O_RDWR|vfs.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	file.Close()

	file, err = fs.OpenFile("/test.txt", vfs.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.IsDir {
		t.Error("file should not be a directory")
	}
	if info.Name != "test.txt" {
		t.Errorf("Name = %q, want test.txt", info.Name)
	}
}

func TestOpenMissing(t *testing.T) {
	fs := New()

	if _, err := fs.OpenFile("/nope", vfs.O_RDONLY, 0); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("OpenFile() error = %v, want %v", err, ErrFileNotFound)
	}
	if _, err := fs.OpenFile("/dir/nope", vfs.O_RDWR|vfs.O_CREATE, 0644); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("OpenFile() in missing dir error = %v, want %v", err, ErrFileNotFound)
	}
	if fs.OpenHandles() != 0 {
		t.Errorf("OpenHandles() = %d after failed opens, want 0", fs.OpenHandles())
	}
}

func TestReadWriteAt(t *testing.T) {
	fs := New()

	file, err := fs.OpenFile("/test.txt", vfs.O_RDWR|vfs.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer file.Close()

	if n, err := file.WriteAt([]byte("0123456789"), 0); err != nil || n != 10 {
		t.Fatalf("WriteAt() = %d, %v", n, err)
	}

	buf := make([]byte, 3)
	n, err := file.ReadAt(buf, 2)
	if err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if string(buf[:n]) != "234" {
		t.Errorf("ReadAt() returned %q, expected %q", string(buf[:n]), "234")
	}

	// Short read at end of file
	n, err = file.ReadAt(buf, 8)
	if n != 2 || err != io.EOF {
		t.Errorf("ReadAt() at tail = %d, %v; want 2, EOF", n, err)
	}

	n, err = file.ReadAt(buf, 10)
	if n != 0 || err != io.EOF {
		t.Errorf("ReadAt() past end = %d, %v; want 0, EOF", n, err)
	}

	// Writing past the end grows the file
	if _, err := file.WriteAt([]byte("!"), 12); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}
	info, _ := file.Stat()
	if info.Size != 13 {
		t.Errorf("Size = %d, want 13", info.Size)
	}
}

func TestAccessModes(t *testing.T) {
	fs := New()
	if err := fs.WriteFile("/ro.txt", []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ro, err := fs.OpenFile("/ro.txt", vfs.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer ro.Close()
	if _, err := ro.WriteAt([]byte("x"), 0); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("WriteAt() on read-only error = %v", err)
	}

	wo, err := fs.OpenFile("/ro.txt", vfs.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer wo.Close()
	if _, err := wo.ReadAt(make([]byte, 1), 0); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("ReadAt() on write-only error = %v", err)
	}
}

func TestTruncAndExcl(t *testing.T) {
	fs := New()
	fs.WriteFile("/f", []byte("hello"), 0644)

	if _, err := fs.OpenFile("/f", vfs.O_RDWR|vfs.O_CREATE|vfs.O_EXCL, 0644); !errors.Is(err, ErrFileExists) {
		t.Errorf("O_EXCL error = %v, want %v", err, ErrFileExists)
	}

	f, err := fs.OpenFile("/f", vfs.O_RDWR|vfs.O_TRUNC, 0)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	f.Close()

	data, _ := fs.ReadFile("/f")
	if len(data) != 0 {
		t.Errorf("ReadFile() after O_TRUNC = %q, want empty", data)
	}
}

func TestCloseAccounting(t *testing.T) {
	fs := New()

	a, _ := fs.OpenFile("/a", vfs.O_RDWR|vfs.O_CREATE, 0644)
	b, _ := fs.OpenFile("/a", vfs.O_RDONLY, 0)
	if fs.OpenHandles() != 2 {
		t.Fatalf("OpenHandles() = %d, want 2", fs.OpenHandles())
	}

	a.Close()
	if err := a.Close(); !errors.Is(err, vfs.ErrClosedFile) {
		t.Errorf("second Close() error = %v, want %v", err, vfs.ErrClosedFile)
	}
	if _, err := a.ReadAt(make([]byte, 1), 0); !errors.Is(err, vfs.ErrClosedFile) {
		t.Errorf("ReadAt() after Close error = %v", err)
	}
	b.Close()

	if fs.OpenHandles() != 0 {
		t.Errorf("OpenHandles() = %d, want 0", fs.OpenHandles())
	}
}

func TestMkdir(t *testing.T) {
	fs := New()

	if err := fs.Mkdir("/mydir", 0755); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := fs.Mkdir("/mydir", 0755); !errors.Is(err, ErrFileExists) {
		t.Errorf("Mkdir() twice error = %v", err)
	}
	if _, err := fs.OpenFile("/mydir", vfs.O_RDWR, 0); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("OpenFile(dir, O_RDWR) error = %v, want %v", err, ErrIsDirectory)
	}
	if err := fs.WriteFile("/mydir/inner.txt", []byte("x"), 0644); err != nil {
		t.Errorf("WriteFile() in dir failed: %v", err)
	}
}

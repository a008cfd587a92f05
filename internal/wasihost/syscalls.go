package wasihost

import (
	"context"
	crand "crypto/rand"
	"errors"
	"time"

	"github.com/codefionn/wasmwerk/internal/vfs"
	"github.com/tetratelabs/wazero/api"
)

// args_sizes_get writes the argument count and the total buffer size needed
// for the null-terminated argument strings.
func (h *Host) argsSizesGet(ctx context.Context, mod api.Module, resultArgc, resultBufSize uint32) uint32 {
	mem := mod.Memory()
	bufSize := uint32(0)
	for _, arg := range h.argv {
		bufSize += uint32(len(arg)) + 1
	}
	if !mem.WriteUint32Le(resultArgc, uint32(len(h.argv))) {
		return errnoFault
	}
	if !mem.WriteUint32Le(resultBufSize, bufSize) {
		return errnoFault
	}
	return errnoSuccess
}

// args_get lays the arguments out contiguously in argvBuf, each terminated by
// a null byte, and fills argv with a pointer to each string.
func (h *Host) argsGet(ctx context.Context, mod api.Module, argv, argvBuf uint32) uint32 {
	mem := mod.Memory()
	offset := argvBuf
	for i, arg := range h.argv {
		if !mem.WriteUint32Le(argv+uint32(4*i), offset) {
			return errnoFault
		}
		if !mem.Write(offset, []byte(arg)) {
			return errnoFault
		}
		if !mem.WriteByte(offset+uint32(len(arg)), 0) {
			return errnoFault
		}
		offset += uint32(len(arg)) + 1
	}
	return errnoSuccess
}

// The environment is always empty: tools receive configuration exclusively
// through argv and stdin.
func (h *Host) environSizesGet(ctx context.Context, mod api.Module, resultCount, resultBufSize uint32) uint32 {
	mem := mod.Memory()
	if !mem.WriteUint32Le(resultCount, 0) || !mem.WriteUint32Le(resultBufSize, 0) {
		return errnoFault
	}
	return errnoSuccess
}

func (h *Host) environGet(ctx context.Context, mod api.Module, environ, environBuf uint32) uint32 {
	return errnoSuccess
}

func (h *Host) clockResGet(ctx context.Context, mod api.Module, id, resultResolution uint32) uint32 {
	if !mod.Memory().WriteUint64Le(resultResolution, 1000) {
		return errnoFault
	}
	return errnoSuccess
}

func (h *Host) clockTimeGet(ctx context.Context, mod api.Module, id uint32, precision uint64, resultTimestamp uint32) uint32 {
	if !mod.Memory().WriteUint64Le(resultTimestamp, uint64(time.Now().UnixNano())) {
		return errnoFault
	}
	return errnoSuccess
}

// fd_read fills the scatter list from stdin or an open virtual file. A short
// or zero read below the requested total signals EOF to the guest.
func (h *Host) fdRead(ctx context.Context, mod api.Module, fd, iovs, iovsCount, resultNread uint32) uint32 {
	if fd == uint32(vfs.FdStdout) || fd == uint32(vfs.FdStderr) {
		return errnoBadf
	}
	mem := mod.Memory()
	total := uint32(0)
	for i := uint32(0); i < iovsCount; i++ {
		base := iovs + 8*i
		ptr, ok := mem.ReadUint32Le(base)
		if !ok {
			return errnoFault
		}
		length, ok := mem.ReadUint32Le(base + 4)
		if !ok {
			return errnoFault
		}
		if length == 0 {
			continue
		}
		var data []byte
		if fd == uint32(vfs.FdStdin) {
			data = h.vfs.ReadStdin(int(length))
		} else {
			b, err := h.vfs.ReadFd(int32(fd), int(length))
			if err != nil {
				return errnoBadf
			}
			data = b
		}
		if len(data) == 0 {
			break
		}
		if !mem.Write(ptr, data) {
			return errnoFault
		}
		total += uint32(len(data))
		if uint32(len(data)) < length {
			break
		}
	}
	if !mem.WriteUint32Le(resultNread, total) {
		return errnoFault
	}
	return errnoSuccess
}

// fd_write gathers the scatter list to stdout, stderr or an open virtual
// file descriptor.
func (h *Host) fdWrite(ctx context.Context, mod api.Module, fd, iovs, iovsCount, resultNwritten uint32) uint32 {
	if fd == uint32(vfs.FdStdin) {
		return errnoBadf
	}
	mem := mod.Memory()
	total := uint32(0)
	for i := uint32(0); i < iovsCount; i++ {
		base := iovs + 8*i
		ptr, ok := mem.ReadUint32Le(base)
		if !ok {
			return errnoFault
		}
		length, ok := mem.ReadUint32Le(base + 4)
		if !ok {
			return errnoFault
		}
		if length == 0 {
			continue
		}
		data, ok := mem.Read(ptr, length)
		if !ok {
			return errnoFault
		}
		switch fd {
		case uint32(vfs.FdStdout):
			total += uint32(h.vfs.WriteStdout(data))
		case uint32(vfs.FdStderr):
			total += uint32(h.vfs.WriteStderr(data))
		default:
			n, err := h.vfs.WriteFd(int32(fd), data)
			if err != nil {
				return errnoBadf
			}
			total += uint32(n)
		}
	}
	if !mem.WriteUint32Le(resultNwritten, total) {
		return errnoFault
	}
	return errnoSuccess
}

// fd_close is always reported as success for the standard streams; they are
// host-owned and survive any close attempt from the guest.
func (h *Host) fdClose(ctx context.Context, mod api.Module, fd uint32) uint32 {
	if err := h.vfs.CloseFd(int32(fd)); err != nil {
		return errnoIO
	}
	return errnoSuccess
}

func (h *Host) fdSeek(ctx context.Context, mod api.Module, fd uint32, offset uint64, whence, resultNewoffset uint32) uint32 {
	if fd <= uint32(vfs.FdStderr) {
		return errnoSpipe
	}
	pos, err := h.vfs.SeekFd(int32(fd), int64(offset), int(whence))
	if err != nil {
		if errors.Is(err, vfs.ErrBadDescriptor) {
			return errnoBadf
		}
		return errnoInval
	}
	if !mod.Memory().WriteUint64Le(resultNewoffset, uint64(pos)) {
		return errnoFault
	}
	return errnoSuccess
}

// fd_fdstat_get fills the 24-byte fdstat record. Rights are reported as
// unrestricted; the actual boundary is enforced by the VFS policy, not by
// rights arithmetic.
func (h *Host) fdFdstatGet(ctx context.Context, mod api.Module, fd, resultFdstat uint32) uint32 {
	var filetype uint8
	switch {
	case fd <= uint32(vfs.FdStderr):
		filetype = filetypeCharDevice
	case h.vfs.IsOpen(int32(fd)):
		filetype = filetypeRegularFile
	default:
		return errnoBadf
	}
	mem := mod.Memory()
	if !mem.Write(resultFdstat, make([]byte, 24)) {
		return errnoFault
	}
	mem.WriteByte(resultFdstat, filetype)
	mem.WriteUint64Le(resultFdstat+8, ^uint64(0))
	mem.WriteUint64Le(resultFdstat+16, ^uint64(0))
	return errnoSuccess
}

func (h *Host) fdFdstatSetFlags(ctx context.Context, mod api.Module, fd, flags uint32) uint32 {
	if fd > uint32(vfs.FdStderr) && !h.vfs.IsOpen(int32(fd)) {
		return errnoBadf
	}
	return errnoSuccess
}

func (h *Host) fdFilestatGet(ctx context.Context, mod api.Module, fd, resultFilestat uint32) uint32 {
	switch {
	case fd <= uint32(vfs.FdStderr):
		return writeFilestat(mod.Memory(), resultFilestat, filetypeCharDevice, 0, time.Time{})
	default:
		size, ok := h.vfs.FdSize(int32(fd))
		if !ok {
			return errnoBadf
		}
		return writeFilestat(mod.Memory(), resultFilestat, filetypeRegularFile, size, time.Time{})
	}
}

// No directories are preopened; tools address the virtual filesystem by
// absolute-looking paths resolved through path_open instead.
func (h *Host) fdPrestatGet(ctx context.Context, mod api.Module, fd, resultPrestat uint32) uint32 {
	return errnoBadf
}

func (h *Host) fdPrestatDirName(ctx context.Context, mod api.Module, fd, path, pathLen uint32) uint32 {
	return errnoBadf
}

// path_open resolves a guest path through the VFS policy. The directory fd is
// ignored: the virtual filesystem has a single implicit root. Write intent is
// inferred from creation/truncation oflags or from rights requesting write
// without read.
func (h *Host) pathOpen(ctx context.Context, mod api.Module, fd, dirflags, pathPtr, pathLen, oflags uint32, rightsBase, rightsInheriting uint64, fdflags, resultFd uint32) uint32 {
	mem := mod.Memory()
	raw, ok := mem.Read(pathPtr, pathLen)
	if !ok {
		return errnoFault
	}
	path := string(raw)
	if oflags&oflagDir != 0 {
		return errnoNotsup
	}

	write := oflags&(oflagCreat|oflagTrunc) != 0 ||
		(rightsBase&rightFdWrite != 0 && rightsBase&rightFdRead == 0)

	if oflags&oflagCreat != 0 && oflags&oflagExcl != 0 && h.vfs.FileExists(path) {
		return errnoExist
	}

	mode := vfs.ModeRead
	if write {
		mode = vfs.ModeWrite
	}
	newFd, err := h.vfs.OpenFile(path, mode)
	if err != nil {
		h.log.Debug("path_open %q denied: %v", path, err)
		if errors.Is(err, vfs.ErrAccessDenied) {
			return errnoAcces
		}
		return errnoNoent
	}
	if !mem.WriteUint32Le(resultFd, uint32(newFd)) {
		return errnoFault
	}
	return errnoSuccess
}

func (h *Host) pathFilestatGet(ctx context.Context, mod api.Module, fd, flags, pathPtr, pathLen, resultFilestat uint32) uint32 {
	mem := mod.Memory()
	raw, ok := mem.Read(pathPtr, pathLen)
	if !ok {
		return errnoFault
	}
	fi, err := h.vfs.StatFile(string(raw))
	if err != nil {
		if errors.Is(err, vfs.ErrAccessDenied) {
			return errnoAcces
		}
		return errnoNoent
	}
	filetype := filetypeRegularFile
	if fi.IsDir {
		filetype = filetypeDirectory
	}
	return writeFilestat(mem, resultFilestat, filetype, fi.Size, fi.ModTime)
}

func (h *Host) randomGet(ctx context.Context, mod api.Module, buf, bufLen uint32) uint32 {
	b := make([]byte, bufLen)
	if _, err := crand.Read(b); err != nil {
		return errnoIO
	}
	if !mod.Memory().Write(buf, b) {
		return errnoFault
	}
	return errnoSuccess
}

// proc_exit records the code and unwinds via the sentinel; execution stops at
// this exact point and the recorded code is what the caller sees.
func (h *Host) procExit(ctx context.Context, mod api.Module, code uint32) {
	h.exited = true
	h.exitCode = code
	panic(&procExitError{code: code})
}

// writeFilestat fills the 64-byte filestat record at buf.
func writeFilestat(mem api.Memory, buf uint32, filetype uint8, size int64, mtime time.Time) uint32 {
	if !mem.Write(buf, make([]byte, 64)) {
		return errnoFault
	}
	mem.WriteByte(buf+16, filetype)
	mem.WriteUint64Le(buf+24, 1) // nlink
	mem.WriteUint64Le(buf+32, uint64(size))
	if !mtime.IsZero() {
		ns := uint64(mtime.UnixNano())
		mem.WriteUint64Le(buf+40, ns)
		mem.WriteUint64Le(buf+48, ns)
		mem.WriteUint64Le(buf+56, ns)
	}
	return errnoSuccess
}

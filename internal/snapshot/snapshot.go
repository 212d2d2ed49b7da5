// Package snapshot implements the binary codec (C7) that serializes an
// entire filesystem instance to a bytestream and restores it, preserving
// hardlinks by emitting each inode exactly once and referring to it by
// number from every directory entry that names it.
//
// Grounded in idiom on the fixed-layout binary encoders elsewhere in the
// retrieval pack (e.g. the ext4/squashfs writers under other_examples/),
// which all reach for encoding/binary over a raw []byte/io.Writer rather
// than a general-purpose serialization framework — the wire format here is
// bespoke and small enough that encoding/binary is the idiomatic tool, not
// a stdlib fallback (see DESIGN.md).
package snapshot

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/content"
	"github.com/go-tmpfs/tmpfs/internal/dirent"
	"github.com/go-tmpfs/tmpfs/internal/inode"
)

const (
	magic   = "DFSv"
	version = uint32(1)
)

const (
	payloadRegular   = uint8(0)
	payloadDirectory = uint8(1)
	payloadSymlink   = uint8(2)
)

// Superblock carries the instance-wide state that sits alongside the inode
// set: cwd, umask, and uid/gid (spec.md §6 "Snapshot file").
type Superblock struct {
	RootIno uint64
	CWDIno  uint64
	Umask   uint32
	UID     uint32
	GID     uint32
}

// Dump writes sb and the entire contents of table to w.
func Dump(w io.Writer, sb Superblock, table *inode.Table) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	for _, v := range []interface{}{version, sb.RootIno, sb.CWDIno, sb.Umask, sb.UID, sb.GID} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	inodes := table.All()
	if err := writeU32(bw, uint32(len(inodes))); err != nil {
		return err
	}
	for _, in := range inodes {
		if err := writeInode(bw, in); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load reads a stream previously produced by Dump, rebuilding a fresh inode
// table (driven by clock) and the superblock describing it. A bad magic,
// unsupported version, or truncated stream all fail with errno.EINVAL.
func Load(r io.Reader, clock timeutil.Clock) (Superblock, *inode.Table, errno.Kind) {
	br := bufio.NewReader(r)

	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(br, hdr); err != nil || string(hdr) != magic {
		return Superblock{}, nil, errno.EINVAL
	}

	var gotVersion uint32
	if err := binary.Read(br, binary.LittleEndian, &gotVersion); err != nil || gotVersion != version {
		return Superblock{}, nil, errno.EINVAL
	}

	var sb Superblock
	fields := []interface{}{&sb.RootIno, &sb.CWDIno, &sb.Umask, &sb.UID, &sb.GID}
	for _, f := range fields {
		if err := binary.Read(br, binary.LittleEndian, f); err != nil {
			return Superblock{}, nil, errno.EINVAL
		}
	}

	count, err := readU32(br)
	if err != nil {
		return Superblock{}, nil, errno.EINVAL
	}

	table := inode.NewTable(clock, sb.UID, sb.GID, 0)
	// NewTable pre-populates a fresh root; the restored root inode (below)
	// overwrites it via Insert once decoded.
	for i := uint32(0); i < count; i++ {
		in, k := readInode(br)
		if k != 0 {
			return Superblock{}, nil, k
		}
		table.Insert(in)
	}

	return sb, table, 0
}

func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU64(w io.Writer, v uint64) error { return binary.Write(w, binary.LittleEndian, v) }
func writeI64(w io.Writer, v int64) error  { return binary.Write(w, binary.LittleEndian, v) }

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}
func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}
func readI64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeString(w io.Writer, s string) error { return writeBytes(w, []byte(s)) }

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeTime(w io.Writer, t time.Time) error { return writeI64(w, t.UnixNano()) }

func readTime(r io.Reader) (time.Time, error) {
	n, err := readI64(r)
	return time.Unix(0, n).UTC(), err
}

func writeInode(w io.Writer, in *inode.Inode) error {
	if err := writeU64(w, in.Ino); err != nil {
		return err
	}

	var payload uint8
	switch {
	case in.IsDir():
		payload = payloadDirectory
	case in.IsSymlink():
		payload = payloadSymlink
	default:
		payload = payloadRegular
	}
	if _, err := w.Write([]byte{payload}); err != nil {
		return err
	}

	if err := writeU32(w, in.Mode); err != nil {
		return err
	}
	if err := writeU32(w, in.Nlink); err != nil {
		return err
	}
	if err := writeU32(w, in.UID); err != nil {
		return err
	}
	if err := writeU32(w, in.GID); err != nil {
		return err
	}
	for _, t := range []time.Time{in.Atime, in.Mtime, in.Ctime, in.Btime} {
		if err := writeTime(w, t); err != nil {
			return err
		}
	}

	names := in.ListXattr()
	if err := writeU32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		val, _ := in.GetXattr(name)
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeBytes(w, val); err != nil {
			return err
		}
	}

	switch payload {
	case payloadDirectory:
		if err := writeU64(w, in.ParentIno); err != nil {
			return err
		}
		entries := in.Dir.Entries()
		if err := writeU32(w, uint32(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := writeString(w, e.Name); err != nil {
				return err
			}
			if err := writeU64(w, e.Ino); err != nil {
				return err
			}
			if _, err := w.Write([]byte{e.Type}); err != nil {
				return err
			}
		}

	case payloadSymlink:
		if err := writeString(w, in.Symlink); err != nil {
			return err
		}

	default: // regular file
		if err := writeI64(w, in.File.Size()); err != nil {
			return err
		}
		extents := in.File.Extents()
		if err := writeU32(w, uint32(len(extents))); err != nil {
			return err
		}
		for _, e := range extents {
			if err := writeI64(w, e.Offset); err != nil {
				return err
			}
			if err := writeBytes(w, e.Data); err != nil {
				return err
			}
		}
	}

	return nil
}

func readInode(r io.Reader) (*inode.Inode, errno.Kind) {
	fail := func() (*inode.Inode, errno.Kind) { return nil, errno.EINVAL }

	ino, err := readU64(r)
	if err != nil {
		return fail()
	}

	var tb [1]byte
	if _, err := io.ReadFull(r, tb[:]); err != nil {
		return fail()
	}
	payload := tb[0]

	mode, err := readU32(r)
	if err != nil {
		return fail()
	}
	nlink, err := readU32(r)
	if err != nil {
		return fail()
	}
	uid, err := readU32(r)
	if err != nil {
		return fail()
	}
	gid, err := readU32(r)
	if err != nil {
		return fail()
	}

	times := make([]time.Time, 4)
	for i := range times {
		times[i], err = readTime(r)
		if err != nil {
			return fail()
		}
	}

	xattrCount, err := readU32(r)
	if err != nil {
		return fail()
	}

	in := &inode.Inode{
		Ino: ino, Mode: mode, Nlink: nlink, UID: uid, GID: gid,
		Atime: times[0], Mtime: times[1], Ctime: times[2], Btime: times[3],
	}

	type xattrKV struct {
		name string
		val  []byte
	}
	xattrs := make([]xattrKV, 0, xattrCount)
	for i := uint32(0); i < xattrCount; i++ {
		name, err := readString(r)
		if err != nil {
			return fail()
		}
		val, err := readBytes(r)
		if err != nil {
			return fail()
		}
		xattrs = append(xattrs, xattrKV{name, val})
	}

	switch payload {
	case payloadDirectory:
		parentIno, err := readU64(r)
		if err != nil {
			return fail()
		}
		count, err := readU32(r)
		if err != nil {
			return fail()
		}
		table := dirent.New()
		for i := uint32(0); i < count; i++ {
			name, err := readString(r)
			if err != nil {
				return fail()
			}
			childIno, err := readU64(r)
			if err != nil {
				return fail()
			}
			var typb [1]byte
			if _, err := io.ReadFull(r, typb[:]); err != nil {
				return fail()
			}
			if k := table.Insert(name, childIno, typb[0]); k != 0 {
				return fail()
			}
		}
		in.Dir = table
		in.ParentIno = parentIno

	case payloadSymlink:
		target, err := readString(r)
		if err != nil {
			return fail()
		}
		in.Symlink = target

	default:
		size, err := readI64(r)
		if err != nil {
			return fail()
		}
		count, err := readU32(r)
		if err != nil {
			return fail()
		}
		extents := make([]content.ExtentView, 0, count)
		for i := uint32(0); i < count; i++ {
			off, err := readI64(r)
			if err != nil {
				return fail()
			}
			data, err := readBytes(r)
			if err != nil {
				return fail()
			}
			extents = append(extents, content.ExtentView{Offset: off, Data: data})
		}
		store := content.NewStore()
		store.LoadExtents(size, extents)
		in.File = store
	}

	for _, kv := range xattrs {
		in.SetXattr(kv.name, kv.val, 0)
	}

	return in, 0
}

// Package badger implements nfs3.Backend on top of BadgerDB, giving the
// request processor a filesystem tree that survives restarts. It follows
// the namespaced-key, manual-binary-encoding storage model the metadata
// store this package is descended from uses, trimmed to exactly the
// operations nfs3.Backend needs.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"time"

	bdg "github.com/dgraph-io/badger/v4"

	"github.com/riverfs/nfsd3/internal/nfs3"
)

// Key namespaces. A node's own record lives under nodePrefix+ino; each
// of its directory entries lives under a separate dirPrefix+ino+name key
// so a directory listing is a bounded prefix scan rather than a decode
// of one growing value.
const (
	nodePrefix = "n:"
	dirPrefix  = "d:"
)

func nodeKey(ino nfs3.FileHandle) []byte {
	return []byte(fmt.Sprintf("%s%020d", nodePrefix, uint64(ino)))
}

func dirEntryKey(dir nfs3.FileHandle, name string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", dirPrefix, uint64(dir), name))
}

// record is the on-disk shape of one inode: its attributes, its parent,
// and (for symlinks and regular files) its inline payload. Directories
// carry no payload; membership lives in the dirPrefix entries.
type record struct {
	stat   nfs3.Stat
	parent nfs3.FileHandle
	data   []byte
	target string
}

func encodeRecord(r *record) []byte {
	var buf bytes.Buffer
	putUint64(&buf, r.stat.Ino)
	putUint32(&buf, r.stat.Mode)
	putUint32(&buf, r.stat.Nlink)
	putUint32(&buf, r.stat.UID)
	putUint32(&buf, r.stat.GID)
	putUint64(&buf, r.stat.Size)
	putUint64(&buf, r.stat.Blocks)
	putUint64(&buf, r.stat.Dev)
	putTimespec(&buf, r.stat.Atime)
	putTimespec(&buf, r.stat.Mtime)
	putTimespec(&buf, r.stat.Ctime)
	putUint64(&buf, uint64(r.parent))
	putBytes(&buf, []byte(r.target))
	putBytes(&buf, r.data)
	return buf.Bytes()
}

func decodeRecord(b []byte) (*record, error) {
	r := bytes.NewReader(b)
	rec := &record{}
	var err error
	if rec.stat.Ino, err = getUint64(r); err != nil {
		return nil, err
	}
	if rec.stat.Mode, err = getUint32(r); err != nil {
		return nil, err
	}
	if rec.stat.Nlink, err = getUint32(r); err != nil {
		return nil, err
	}
	if rec.stat.UID, err = getUint32(r); err != nil {
		return nil, err
	}
	if rec.stat.GID, err = getUint32(r); err != nil {
		return nil, err
	}
	if rec.stat.Size, err = getUint64(r); err != nil {
		return nil, err
	}
	if rec.stat.Blocks, err = getUint64(r); err != nil {
		return nil, err
	}
	if rec.stat.Dev, err = getUint64(r); err != nil {
		return nil, err
	}
	if rec.stat.Atime, err = getTimespec(r); err != nil {
		return nil, err
	}
	if rec.stat.Mtime, err = getTimespec(r); err != nil {
		return nil, err
	}
	if rec.stat.Ctime, err = getTimespec(r); err != nil {
		return nil, err
	}
	parent, err := getUint64(r)
	if err != nil {
		return nil, err
	}
	rec.parent = nfs3.FileHandle(parent)
	target, err := getBytes(r)
	if err != nil {
		return nil, err
	}
	rec.target = string(target)
	if rec.data, err = getBytes(r); err != nil {
		return nil, err
	}
	return rec, nil
}

func putUint64(buf *bytes.Buffer, v uint64) { _ = binary.Write(buf, binary.BigEndian, v) }
func putUint32(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.BigEndian, v) }
func putTimespec(buf *bytes.Buffer, t nfs3.Timespec) {
	_ = binary.Write(buf, binary.BigEndian, t.Sec)
	_ = binary.Write(buf, binary.BigEndian, t.Nsec)
}
func putBytes(buf *bytes.Buffer, b []byte) {
	putUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func getUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func getTimespec(r *bytes.Reader) (nfs3.Timespec, error) {
	var t nfs3.Timespec
	if err := binary.Read(r, binary.BigEndian, &t.Sec); err != nil {
		return t, err
	}
	if err := binary.Read(r, binary.BigEndian, &t.Nsec); err != nil {
		return t, err
	}
	return t, nil
}
func getBytes(r *bytes.Reader) ([]byte, error) {
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// counterKey stores the next-inode-number allocator in the same
// database so restarts resume numbering rather than colliding with
// existing handles.
var counterKey = []byte("meta:next_ino")

// Backend is a BadgerDB-backed nfs3.Backend. A single coarse mutex
// serializes structural mutations (create/mkdir/write); Badger's own
// MVCC handles read isolation for GetAttr/Lookup/Readlink/Statfs.
type Backend struct {
	mu   sync.Mutex
	db   *bdg.DB
	dev  uint64
	root nfs3.FileHandle
}

// Open opens (creating if absent) a BadgerDB at dir and returns a
// Backend backed by it, bootstrapping a root directory on first use.
func Open(dir string) (*Backend, error) {
	opts := bdg.DefaultOptions(dir).WithLogger(nil)
	db, err := bdg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("backend/badger: open %s: %w", dir, err)
	}
	b := &Backend{db: db, dev: 1}
	if err := b.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error { return b.db.Close() }

// Root returns the handle of the backend's root directory.
func (b *Backend) Root() nfs3.FileHandle { return b.root }

func (b *Backend) bootstrap() error {
	return b.db.Update(func(txn *bdg.Txn) error {
		if _, err := txn.Get(nodeKey(1)); err == nil {
			b.root = 1
			return nil
		} else if err != bdg.ErrKeyNotFound {
			return err
		}
		now := timespecNow()
		rec := &record{
			stat:   nfs3.Stat{Ino: 1, Mode: nfs3.ModeDir | 0755, Nlink: 2, Dev: b.dev, Atime: now, Mtime: now, Ctime: now},
			parent: 1,
		}
		if err := txn.Set(nodeKey(1), encodeRecord(rec)); err != nil {
			return err
		}
		if err := txn.Set(counterKey, encodeUint64(1)); err != nil {
			return err
		}
		b.root = 1
		return nil
	})
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func timespecNow() nfs3.Timespec {
	now := time.Now()
	return nfs3.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
}

func (b *Backend) allocIno(txn *bdg.Txn) (nfs3.FileHandle, error) {
	item, err := txn.Get(counterKey)
	if err != nil {
		return 0, err
	}
	var cur uint64
	if err := item.Value(func(val []byte) error {
		cur = binary.BigEndian.Uint64(val)
		return nil
	}); err != nil {
		return 0, err
	}
	cur++
	if err := txn.Set(counterKey, encodeUint64(cur)); err != nil {
		return 0, err
	}
	return nfs3.FileHandle(cur), nil
}

func (b *Backend) getRecord(txn *bdg.Txn, ino nfs3.FileHandle) (*record, error) {
	item, err := txn.Get(nodeKey(ino))
	if err == bdg.ErrKeyNotFound {
		return nil, syscall.ESTALE
	}
	if err != nil {
		return nil, err
	}
	var rec *record
	err = item.Value(func(val []byte) error {
		r, err := decodeRecord(val)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

func (b *Backend) GetAttr(ctx context.Context, ino nfs3.FileHandle) (*nfs3.Stat, error) {
	var stat nfs3.Stat
	err := b.db.View(func(txn *bdg.Txn) error {
		rec, err := b.getRecord(txn, ino)
		if err != nil {
			return err
		}
		stat = rec.stat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (b *Backend) GetParent(ctx context.Context, ino nfs3.FileHandle) (nfs3.FileHandle, error) {
	var parent nfs3.FileHandle
	err := b.db.View(func(txn *bdg.Txn) error {
		rec, err := b.getRecord(txn, ino)
		if err != nil {
			return err
		}
		parent = rec.parent
		return nil
	})
	return parent, err
}

func (b *Backend) Lookup(ctx context.Context, dir nfs3.FileHandle, name string) (nfs3.FileHandle, *nfs3.Stat, error) {
	var child nfs3.FileHandle
	var stat nfs3.Stat
	err := b.db.View(func(txn *bdg.Txn) error {
		dn, err := b.getRecord(txn, dir)
		if err != nil {
			return err
		}
		if dn.stat.Mode&nfs3.ModeFmt != nfs3.ModeDir {
			return syscall.ENOTDIR
		}
		item, err := txn.Get(dirEntryKey(dir, name))
		if err == bdg.ErrKeyNotFound {
			return syscall.ENOENT
		}
		if err != nil {
			return err
		}
		var ino uint64
		if err := item.Value(func(val []byte) error {
			ino = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return err
		}
		child = nfs3.FileHandle(ino)
		cn, err := b.getRecord(txn, child)
		if err != nil {
			return err
		}
		stat = cn.stat
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return child, &stat, nil
}

func (b *Backend) Readlink(ctx context.Context, ino nfs3.FileHandle) (string, error) {
	var target string
	err := b.db.View(func(txn *bdg.Txn) error {
		rec, err := b.getRecord(txn, ino)
		if err != nil {
			return err
		}
		if rec.stat.Mode&nfs3.ModeFmt != nfs3.ModeLnk {
			return syscall.EINVAL
		}
		target = rec.target
		return nil
	})
	return target, err
}

func (b *Backend) Write(ctx context.Context, ino nfs3.FileHandle, data []byte, offset uint64) (*nfs3.WriteResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result nfs3.WriteResult
	err := b.db.Update(func(txn *bdg.Txn) error {
		rec, err := b.getRecord(txn, ino)
		if err != nil {
			return err
		}
		if rec.stat.Mode&nfs3.ModeFmt != nfs3.ModeReg {
			return syscall.EINVAL
		}
		pre := rec.stat

		end := offset + uint64(len(data))
		if end > uint64(len(rec.data)) {
			grown := make([]byte, end)
			copy(grown, rec.data)
			rec.data = grown
		}
		copy(rec.data[offset:end], data)

		now := timespecNow()
		rec.stat.Size = uint64(len(rec.data))
		rec.stat.Blocks = (rec.stat.Size + 511) / 512
		rec.stat.Mtime = now
		rec.stat.Ctime = now

		if err := txn.Set(nodeKey(ino), encodeRecord(rec)); err != nil {
			return err
		}
		post := rec.stat
		result = nfs3.WriteResult{Written: uint64(len(data)), PreStat: &pre, PostStat: &post}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *Backend) Create(ctx context.Context, dir nfs3.FileHandle, name string, mode uint32) (*nfs3.CreateResult, error) {
	return b.createChild(dir, name, mode, false)
}

func (b *Backend) Mkdir(ctx context.Context, dir nfs3.FileHandle, name string, mode uint32) (*nfs3.CreateResult, error) {
	return b.createChild(dir, name, mode, true)
}

func (b *Backend) createChild(dir nfs3.FileHandle, name string, mode uint32, isDir bool) (*nfs3.CreateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result nfs3.CreateResult
	err := b.db.Update(func(txn *bdg.Txn) error {
		dn, err := b.getRecord(txn, dir)
		if err != nil {
			return err
		}
		if dn.stat.Mode&nfs3.ModeFmt != nfs3.ModeDir {
			return syscall.ENOTDIR
		}
		preDir := dn.stat

		if _, err := txn.Get(dirEntryKey(dir, name)); err == nil {
			return syscall.EEXIST
		} else if err != bdg.ErrKeyNotFound {
			return err
		}

		ino, err := b.allocIno(txn)
		if err != nil {
			return err
		}
		now := timespecNow()
		rec := &record{
			stat:   nfs3.Stat{Ino: uint64(ino), Mode: mode, Nlink: 1, Dev: b.dev, Atime: now, Mtime: now, Ctime: now},
			parent: dir,
		}
		if isDir {
			rec.stat.Nlink = 2
		}
		if err := txn.Set(nodeKey(ino), encodeRecord(rec)); err != nil {
			return err
		}
		if err := txn.Set(dirEntryKey(dir, name), encodeUint64(uint64(ino))); err != nil {
			return err
		}

		dn.stat.Mtime = now
		dn.stat.Ctime = now
		if err := txn.Set(nodeKey(dir), encodeRecord(dn)); err != nil {
			return err
		}
		postDir := dn.stat

		stat := rec.stat
		result = nfs3.CreateResult{Handle: ino, Stat: &stat, PreDirStat: &preDir, PostDirStat: &postDir}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *Backend) Statfs(ctx context.Context, ino nfs3.FileHandle) (*nfs3.StatFS, error) {
	var used uint64
	var count uint64
	err := b.db.View(func(txn *bdg.Txn) error {
		if _, err := b.getRecord(txn, ino); err != nil {
			return err
		}
		opts := bdg.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(nodePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
			if err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				used += rec.stat.Blocks
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	const totalBlocks = 1 << 26 // a nominal 256 GiB filesystem at a 4 KiB block size
	const blockSize = 4096
	free := uint64(totalBlocks) - used
	return &nfs3.StatFS{
		TotalBlocks: totalBlocks,
		FreeBlocks:  free,
		AvailBlocks: free,
		BlockSize:   blockSize,
		TotalFiles:  1 << 22,
		FreeFiles:   uint64(1<<22) - count,
	}, nil
}

var _ nfs3.Backend = (*Backend)(nil)

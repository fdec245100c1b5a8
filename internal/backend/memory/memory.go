// Package memory implements nfs3.Backend entirely in process memory. It
// is the default backend: no configuration, no persistence across
// restarts, grounded on the same tree-of-nodes shape as the richer
// on-disk backends but stripped down to exactly what the request
// processor's Backend interface needs.
package memory

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/riverfs/nfsd3/internal/nfs3"
)

type node struct {
	stat     nfs3.Stat
	parent   nfs3.FileHandle
	children map[string]nfs3.FileHandle // directories only
	data     []byte                     // regular files only
	target   string                     // symlinks only
}

// Backend is an in-memory filesystem tree rooted at a single directory.
type Backend struct {
	mu      sync.RWMutex
	nodes   map[nfs3.FileHandle]*node
	nextIno uint64
	dev     uint64
	root    nfs3.FileHandle
}

// New builds a Backend with a single empty root directory.
func New() *Backend {
	b := &Backend{
		nodes: make(map[nfs3.FileHandle]*node),
		dev:   1,
	}
	root := b.allocIno()
	b.root = root
	now := timespecNow()
	b.nodes[root] = &node{
		stat: nfs3.Stat{
			Ino: uint64(root), Mode: nfs3.ModeDir | 0755, Nlink: 2,
			Dev: b.dev, Atime: now, Mtime: now, Ctime: now,
		},
		parent:   root,
		children: make(map[string]nfs3.FileHandle),
	}
	return b
}

// Root returns the handle of the backend's root directory, the handle
// a MOUNT of this share should hand out.
func (b *Backend) Root() nfs3.FileHandle { return b.root }

func (b *Backend) allocIno() nfs3.FileHandle {
	b.nextIno++
	return nfs3.FileHandle(b.nextIno)
}

func timespecNow() nfs3.Timespec {
	now := time.Now()
	return nfs3.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
}

func (b *Backend) GetAttr(ctx context.Context, ino nfs3.FileHandle) (*nfs3.Stat, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[ino]
	if !ok {
		return nil, syscall.ESTALE
	}
	stat := n.stat
	return &stat, nil
}

func (b *Backend) GetParent(ctx context.Context, ino nfs3.FileHandle) (nfs3.FileHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[ino]
	if !ok {
		return 0, syscall.ESTALE
	}
	return n.parent, nil
}

func (b *Backend) Lookup(ctx context.Context, dir nfs3.FileHandle, name string) (nfs3.FileHandle, *nfs3.Stat, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dn, ok := b.nodes[dir]
	if !ok {
		return 0, nil, syscall.ESTALE
	}
	if dn.stat.Mode&nfs3.ModeFmt != nfs3.ModeDir {
		return 0, nil, syscall.ENOTDIR
	}
	child, ok := dn.children[name]
	if !ok {
		return 0, nil, syscall.ENOENT
	}
	cn := b.nodes[child]
	stat := cn.stat
	return child, &stat, nil
}

func (b *Backend) Readlink(ctx context.Context, ino nfs3.FileHandle) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[ino]
	if !ok {
		return "", syscall.ESTALE
	}
	if n.stat.Mode&nfs3.ModeFmt != nfs3.ModeLnk {
		return "", syscall.EINVAL
	}
	return n.target, nil
}

func (b *Backend) Write(ctx context.Context, ino nfs3.FileHandle, data []byte, offset uint64) (*nfs3.WriteResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[ino]
	if !ok {
		return nil, syscall.ESTALE
	}
	if n.stat.Mode&nfs3.ModeFmt != nfs3.ModeReg {
		return nil, syscall.EINVAL
	}

	pre := n.stat

	end := offset + uint64(len(data))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:end], data)

	now := timespecNow()
	n.stat.Size = uint64(len(n.data))
	n.stat.Blocks = (n.stat.Size + 511) / 512
	n.stat.Mtime = now
	n.stat.Ctime = now

	post := n.stat
	return &nfs3.WriteResult{Written: uint64(len(data)), PreStat: &pre, PostStat: &post}, nil
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

	dn, ok := b.nodes[dir]
	if !ok {
		return nil, syscall.ESTALE
	}
	if dn.stat.Mode&nfs3.ModeFmt != nfs3.ModeDir {
		return nil, syscall.ENOTDIR
	}

	preDir := dn.stat

	if _, exists := dn.children[name]; exists {
		return nil, syscall.EEXIST
	}

	now := timespecNow()
	ino := b.allocIno()
	n := &node{
		stat: nfs3.Stat{
			Ino: uint64(ino), Mode: mode, Nlink: 1,
			Dev: b.dev, Atime: now, Mtime: now, Ctime: now,
		},
		parent: dir,
	}
	if isDir {
		n.stat.Nlink = 2
		n.children = make(map[string]nfs3.FileHandle)
	}
	b.nodes[ino] = n
	dn.children[name] = ino

	dn.stat.Mtime = now
	dn.stat.Ctime = now
	postDir := dn.stat

	stat := n.stat
	return &nfs3.CreateResult{Handle: ino, Stat: &stat, PreDirStat: &preDir, PostDirStat: &postDir}, nil
}

func (b *Backend) Statfs(ctx context.Context, ino nfs3.FileHandle) (*nfs3.StatFS, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.nodes[ino]; !ok {
		return nil, syscall.ESTALE
	}
	var used uint64
	for _, n := range b.nodes {
		used += n.stat.Blocks
	}
	const totalBlocks = 1 << 24 // a nominal 64 GiB filesystem at a 4 KiB block size
	const blockSize = 4096
	free := uint64(totalBlocks) - used
	return &nfs3.StatFS{
		TotalBlocks: totalBlocks,
		FreeBlocks:  free,
		AvailBlocks: free,
		BlockSize:   blockSize,
		TotalFiles:  1 << 20,
		FreeFiles:   uint64(1<<20) - uint64(len(b.nodes)),
	}, nil
}

var _ nfs3.Backend = (*Backend)(nil)

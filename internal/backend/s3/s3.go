// Package s3 implements nfs3.Backend with file content stored in Amazon
// S3 (or an S3-compatible endpoint) and metadata kept in memory. It
// follows the read-modify-write WriteAt pattern of the content store
// this package is descended from, and keys each object by inode number
// under a configurable prefix.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/riverfs/nfsd3/internal/nfs3"
)

// Config selects the bucket and key layout a Backend stores objects
// under.
type Config struct {
	// Client is a configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket regular file content is stored in. It
	// must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "nfsd3/content/".
	KeyPrefix string
}

type node struct {
	stat     nfs3.Stat
	parent   nfs3.FileHandle
	children map[string]nfs3.FileHandle // directories only
	target   string                     // symlinks only
}

// Backend is an nfs3.Backend whose directory tree and inode attributes
// live in memory, while regular-file content lives in S3 under a key
// derived from the inode number.
type Backend struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu      sync.RWMutex
	nodes   map[nfs3.FileHandle]*node
	nextIno uint64
	dev     uint64
	root    nfs3.FileHandle
}

// New builds a Backend against the given S3 configuration, with a
// single empty root directory.
func New(cfg Config) *Backend {
	b := &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		nodes:     make(map[nfs3.FileHandle]*node),
		dev:       1,
	}
	root := b.allocIno()
	b.root = root
	now := timespecNow()
	b.nodes[root] = &node{
		stat:     nfs3.Stat{Ino: uint64(root), Mode: nfs3.ModeDir | 0755, Nlink: 2, Dev: b.dev, Atime: now, Mtime: now, Ctime: now},
		parent:   root,
		children: make(map[string]nfs3.FileHandle),
	}
	return b
}

// Root returns the handle of the backend's root directory.
func (b *Backend) Root() nfs3.FileHandle { return b.root }

func (b *Backend) allocIno() nfs3.FileHandle {
	b.nextIno++
	return nfs3.FileHandle(b.nextIno)
}

func timespecNow() nfs3.Timespec {
	now := time.Now()
	return nfs3.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
}

func (b *Backend) objectKey(ino nfs3.FileHandle) string {
	return fmt.Sprintf("%s%020d", b.keyPrefix, uint64(ino))
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

// readObject fetches the current content of ino's S3 object, treating a
// missing object (a file that was created but never written) as empty
// content rather than an error.
func (b *Backend) readObject(ctx context.Context, ino nfs3.FileHandle) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(ino)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("backend/s3: get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write implements a read-modify-write cycle: the existing object is
// fetched, the write is applied at offset in memory, and the whole
// object is put back. S3 has no native random-access write.
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

	existing, err := b.readObject(ctx, ino)
	if err != nil {
		return nil, err
	}

	end := offset + uint64(len(data))
	if end > uint64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:end], data)

	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(ino)),
		Body:   bytes.NewReader(existing),
	}); err != nil {
		return nil, fmt.Errorf("backend/s3: put object: %w", err)
	}

	now := timespecNow()
	n.stat.Size = uint64(len(existing))
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
		stat:   nfs3.Stat{Ino: uint64(ino), Mode: mode, Nlink: 1, Dev: b.dev, Atime: now, Mtime: now, Ctime: now},
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
	// S3 has no meaningful capacity ceiling to report; a large nominal
	// figure keeps clients that size their I/O off FSSTAT from
	// throttling themselves.
	const totalBlocks = 1 << 30
	const blockSize = 4096
	return &nfs3.StatFS{
		TotalBlocks: totalBlocks,
		FreeBlocks:  totalBlocks,
		AvailBlocks: totalBlocks,
		BlockSize:   blockSize,
		TotalFiles:  1 << 24,
		FreeFiles:   uint64(1<<24) - uint64(len(b.nodes)),
	}, nil
}

var _ nfs3.Backend = (*Backend)(nil)

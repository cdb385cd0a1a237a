package testsupport

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"memecat/internal/diff"
	"memecat/internal/services"
)

// FakeRemote is an in-memory WebDAV stand-in. It satisfies the lister,
// deleter, and uploader collaborator interfaces.
type FakeRemote struct {
	mu        sync.Mutex
	files     map[string]fakeFile
	fetchErrs map[string]error
	listErr   error
	fetches   map[string]int
	deleted   []string
	uploads   map[string][]byte

	// FetchHook runs before every fetch when set. Tests use it to block a run.
	FetchHook func(ctx context.Context, remotePath string)
}

type fakeFile struct {
	data    []byte
	modTime time.Time
}

// NewFakeRemote returns an empty remote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		files:     make(map[string]fakeFile),
		fetchErrs: make(map[string]error),
		fetches:   make(map[string]int),
		uploads:   make(map[string][]byte),
	}
}

// Put stores data at remotePath with the given modification time.
func (r *FakeRemote) Put(remotePath string, data []byte, modTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[remotePath] = fakeFile{data: append([]byte(nil), data...), modTime: modTime.UTC()}
}

// Remove drops remotePath from the listing.
func (r *FakeRemote) Remove(remotePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, remotePath)
}

// FailFetch makes fetches of remotePath return err. A nil err clears it.
func (r *FakeRemote) FailFetch(remotePath string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fetchErrs, remotePath)
		return
	}
	r.fetchErrs[remotePath] = err
}

// FailList makes List return err. A nil err clears it.
func (r *FakeRemote) FailList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

// List reports every stored file sorted by path.
func (r *FakeRemote) List(ctx context.Context) ([]diff.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	entries := make([]diff.RemoteEntry, 0, len(r.files))
	for p, f := range r.files {
		entries = append(entries, diff.RemoteEntry{
			Filename:   diff.NormalizeName(p),
			RemotePath: p,
			Size:       int64(len(f.data)),
			ModifiedAt: f.modTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RemotePath < entries[j].RemotePath })
	return entries, nil
}

// Fetch returns the stored bytes for remotePath.
func (r *FakeRemote) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	if hook := r.FetchHook; hook != nil {
		hook(ctx, remotePath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches[remotePath]++
	if err := r.fetchErrs[remotePath]; err != nil {
		return nil, err
	}
	f, ok := r.files[remotePath]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake-remote", "fetch", remotePath, nil)
	}
	return append([]byte(nil), f.data...), nil
}

// Fetches returns how many times remotePath was fetched.
func (r *FakeRemote) Fetches(remotePath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches[remotePath]
}

// Delete removes remotePath and records the call.
func (r *FakeRemote) Delete(_ context.Context, remotePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, remotePath)
	r.deleted = append(r.deleted, remotePath)
	return nil
}

// Deleted returns the paths passed to Delete in call order.
func (r *FakeRemote) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

// Upload records data under the basename of name.
func (r *FakeRemote) Upload(_ context.Context, name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[path.Base(name)] = append([]byte(nil), data...)
	return nil
}

// Uploaded returns the last upload for name.
func (r *FakeRemote) Uploaded(name string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.uploads[name]
	return data, ok
}

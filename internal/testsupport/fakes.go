package testsupport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"memecat/internal/fingerprint"
	"memecat/internal/services"
	"memecat/internal/services/llm"
)

const fakeFPPrefix = "fp:"

// FPPayload encodes fp as media bytes understood by FakeFingerprinter. The
// payload is padded so decoders that check for a minimum size accept it.
func FPPayload(fp uint64, salt string) []byte {
	return []byte(fmt.Sprintf("%s%016x;%s;%s", fakeFPPrefix, fp, salt, strings.Repeat("x", fingerprint.MinInputSize)))
}

// FakeFingerprinter reads fingerprints out of FPPayload bytes. Anything else
// fails to decode.
type FakeFingerprinter struct {
	mu    sync.Mutex
	calls int
}

// Compute implements fpcache.Computer.
func (f *FakeFingerprinter) Compute(_ context.Context, data []byte, _ fingerprint.MediaKind) (fingerprint.Fingerprint, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if !bytes.HasPrefix(data, []byte(fakeFPPrefix)) {
		return 0, &fingerprint.DecodeError{Size: len(data), Stage: fingerprint.StageDecode, Err: errors.New("not a fingerprint payload")}
	}
	raw := string(data[len(fakeFPPrefix):])
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, &fingerprint.DecodeError{Size: len(data), Stage: fingerprint.StageDecode, Err: err}
	}
	return fingerprint.Fingerprint(v), nil
}

// Calls returns how many computations ran.
func (f *FakeFingerprinter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeDescriber returns canned descriptions keyed by filename.
type FakeDescriber struct {
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

// NewFakeDescriber returns a describer that succeeds for every file.
func NewFakeDescriber() *FakeDescriber {
	return &FakeDescriber{errs: make(map[string]error), calls: make(map[string]int)}
}

// Fail makes descriptions of filename return err. A nil err clears it.
func (d *FakeDescriber) Fail(filename string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, filename)
		return
	}
	d.errs[filename] = err
}

// Describe implements the workflow describer.
func (d *FakeDescriber) Describe(ctx context.Context, media llm.Media) (llm.Description, error) {
	if err := ctx.Err(); err != nil {
		return llm.Description{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[media.Filename]++
	if err := d.errs[media.Filename]; err != nil {
		return llm.Description{}, err
	}
	return llm.Description{
		Description: "a meme called " + media.Filename,
		Category:    "test",
		Keywords:    []string{"meme", strings.TrimSuffix(media.Filename, ".png")},
		TextInImage: "",
	}, nil
}

// Calls returns how many times filename was described.
func (d *FakeDescriber) Calls(filename string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[filename]
}

// UnsupportedError returns an error classified as unsupported media.
func UnsupportedError(filename string) error {
	return services.Wrap(services.ErrUnsupportedMedia, "fake-llm", "describe", filename, nil)
}

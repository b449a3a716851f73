package engine

import (
	"context"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/Thog/inochi2d-go/errors"
)

// withGuestBytes copies data into freshly allocated guest memory, runs fn
// with the guest pointer and length, and frees the allocation afterwards.
// An empty slice is passed as (0, 0) without allocating.
func (l *WazeroLibrary) withGuestBytes(ctx context.Context, phase errors.Phase, data []byte, fn func(ptr, n uint32) error) (err error) {
	n := uint32(len(data))
	if n == 0 {
		return fn(0, 0)
	}

	res, err := l.call(ctx, phase, exportAlloc, l.ex.alloc, uint64(n))
	if err != nil {
		return err
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return errors.New(phase, errors.KindCallFailed).
			Entry(exportAlloc).
			Detail("allocation of %d bytes failed", n).
			Build()
	}
	defer func() {
		if _, ferr := l.call(ctx, phase, exportFree, l.ex.free, uint64(ptr)); ferr != nil {
			err = multierr.Append(err, ferr)
		}
	}()

	if !l.memory.Write(ptr, data) {
		return errors.OutOfBounds(phase, ptr, n, l.memory.Size())
	}
	return fn(ptr, n)
}

// textRecord is a native string record copied out of guest memory.
// Copying at read time keeps the record valid after later native calls
// reuse the buffer it pointed to.
type textRecord struct {
	data []byte
	err  error
}

// readTextRecord snapshots the {len u32, ptr u32} record at ptr.
// Failures to read are kept and reported by Text.
func readTextRecord(mem api.Memory, phase errors.Phase, ptr uint32) *textRecord {
	n, okLen := mem.ReadUint32Le(ptr)
	p, okPtr := mem.ReadUint32Le(ptr + 4)
	if !okLen || !okPtr {
		return &textRecord{err: errors.OutOfBounds(phase, ptr, textRecordHeaderSize, mem.Size())}
	}

	view, ok := mem.Read(p, n)
	if !ok {
		return &textRecord{err: errors.OutOfBounds(phase, p, n, mem.Size())}
	}

	data := make([]byte, len(view))
	copy(data, view)
	if !utf8.Valid(data) {
		return &textRecord{data: data, err: errors.InvalidUTF8(phase, data)}
	}
	return &textRecord{data: data}
}

// Text implements inochi2d.TextRecord.
func (r *textRecord) Text() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return string(r.data), nil
}

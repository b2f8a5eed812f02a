package voicevox

import (
	"iter"
	"unicode/utf8"
	"unsafe"
)

// noCopy 让 go vet 的 copylocks 检查拒绝按值拷贝持有者。
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// FreeFunc 是引擎为某类输出提供的释放函数。
type FreeFunc func(unsafe.Pointer)

// RawBuffer 是越过边界返回的原始输出：首地址、元素个数以及唯一的释放函数。
type RawBuffer struct {
	Ptr  unsafe.Pointer
	Len  int
	Free FreeFunc
}

// RawText 是引擎返回的以 NUL 结尾的 UTF-8 字节串。
type RawText struct {
	Ptr  unsafe.Pointer
	Free FreeFunc
}

// Buffer 独占一段由引擎分配的内存，只提供只读访问。
//
// Buffer 只能以指针形式持有，所有权通过 Move 转移。持有者负责在作用域结束时
// 调用 Close（通常是 defer buf.Close()），释放函数恰好执行一次。
// Buffer 不是并发安全的，释放时会调用引擎，必须遵守引擎的独占访问约束。
type Buffer[T any] struct {
	noCopy noCopy

	ptr  unsafe.Pointer
	n    int
	free FreeFunc
}

func newBuffer[T any](op string, raw RawBuffer) (*Buffer[T], error) {
	if raw.Ptr == nil {
		if raw.Len > 0 {
			return nil, faultf(op, ErrNullBuffer, "length %d", raw.Len)
		}
		return &Buffer[T]{}, nil
	}
	if raw.Len < 0 {
		if raw.Free != nil {
			raw.Free(raw.Ptr)
		}
		return nil, faultf(op, ErrLengthMismatch, "negative length %d", raw.Len)
	}
	return &Buffer[T]{ptr: raw.Ptr, n: raw.Len, free: raw.Free}, nil
}

// Len 返回元素个数；Close 之后为 0。
func (b *Buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	return b.n
}

// At 返回第 i 个元素，越界时 panic。
func (b *Buffer[T]) At(i int) T {
	return b.view()[i]
}

// All 按顺序遍历元素。遍历期间不能 Close。
func (b *Buffer[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range b.view() {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Copy 把内容复制到 Go 管理的内存中，结果在 Close 之后仍然有效。
func (b *Buffer[T]) Copy() []T {
	v := b.view()
	out := make([]T, len(v))
	copy(out, v)
	return out
}

// CopyTo 复制到 dst，返回复制的元素个数。
func (b *Buffer[T]) CopyTo(dst []T) int {
	return copy(dst, b.view())
}

// Move 把所有权转移给新的 Buffer，原持有者变为空，其 Close 不再释放任何内存。
func (b *Buffer[T]) Move() *Buffer[T] {
	out := &Buffer[T]{ptr: b.ptr, n: b.n, free: b.free}
	b.ptr, b.n, b.free = nil, 0, nil
	return out
}

// Close 释放底层内存。重复调用是空操作。
func (b *Buffer[T]) Close() error {
	if b == nil || b.ptr == nil {
		return nil
	}
	p, free := b.ptr, b.free
	b.ptr, b.n, b.free = nil, 0, nil
	if free != nil {
		free(p)
	}
	return nil
}

func (b *Buffer[T]) view() []T {
	if b == nil || b.ptr == nil || b.n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(b.ptr), b.n)
}

// Text 独占引擎返回的 NUL 结尾文本。
type Text struct {
	noCopy noCopy

	op   string
	ptr  unsafe.Pointer
	free FreeFunc
}

func newText(op string, raw RawText) (*Text, error) {
	if raw.Ptr == nil {
		return nil, faultf(op, ErrNullBuffer, "text output")
	}
	return &Text{op: op, ptr: raw.Ptr, free: raw.Free}, nil
}

// Len 返回不含结尾 NUL 的字节数。
func (t *Text) Len() int {
	if t == nil || t.ptr == nil {
		return 0
	}
	n := 0
	for *(*byte)(unsafe.Add(t.ptr, n)) != 0 {
		n++
	}
	return n
}

// Decode 把内容复制为 Go 字符串。
// 引擎保证成功时输出合法 UTF-8，解码失败说明边界契约被破坏，返回 *Fault。
func (t *Text) Decode() (string, error) {
	n := t.Len()
	if n == 0 {
		return "", nil
	}
	b := unsafe.Slice((*byte)(t.ptr), n)
	if !utf8.Valid(b) {
		return "", faultf(t.op, ErrInvalidUTF8Output, "%d bytes", n)
	}
	return string(b), nil
}

// Move 转移所有权。
func (t *Text) Move() *Text {
	out := &Text{op: t.op, ptr: t.ptr, free: t.free}
	t.ptr, t.free = nil, nil
	return out
}

// Close 释放底层内存。重复调用是空操作。
func (t *Text) Close() error {
	if t == nil || t.ptr == nil {
		return nil
	}
	p, free := t.ptr, t.free
	t.ptr, t.free = nil, nil
	if free != nil {
		free(p)
	}
	return nil
}

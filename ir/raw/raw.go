package raw

import (
	"context"
	"fmt"
	"io"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the reserved head of the free list.
func (r ObjectRef) IsZero() bool { return r.Num == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Resolver materializes indirect objects.
type Resolver interface {
	Resolve(ref ObjectRef) (Object, error)
}

// Source lazily supplies objects for a Document, usually backed by a parsed file.
type Source interface {
	Load(ctx context.Context, ref ObjectRef) (Object, error)
	Refs() []ObjectRef
}

// BrokenReferenceError reports a reference to an object that does not exist.
type BrokenReferenceError struct {
	Ref ObjectRef
	Err error
}

func (e *BrokenReferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broken reference %s: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("broken reference %s", e.Ref)
}

func (e *BrokenReferenceError) Unwrap() error { return e.Err }

// DocumentMetadata contains common PDF info fields.
type DocumentMetadata struct {
	Producer string
	Creator  string
	Title    string
	Author   string
	Subject  string
	Keywords string
}

// Permissions describes allowed actions expressed in the parsed document.
type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool
}

// AllPermissions grants every operation.
func AllPermissions() Permissions {
	return Permissions{true, true, true, true, true, true, true, true}
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, r io.ReaderAt) (*Document, error)
}

// Package geoerr defines the closed set of error kinds raised by the
// catalog, graph, cutter, driver, and label-maker packages.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fatal error conditions of §7.
type Kind string

const (
	DuplicateInput          Kind = "duplicate_input"
	KeyConflict             Kind = "key_conflict"
	NullGeometry            Kind = "null_geometry"
	SchemaMismatch          Kind = "schema_mismatch"
	UnknownVertex           Kind = "unknown_vertex"
	UnknownKey              Kind = "unknown_key"
	EdgeExists              Kind = "edge_exists"
	VertexHasEdges          Kind = "vertex_has_edges"
	CrsMismatch             Kind = "crs_mismatch"
	InconsistentCutDirs     Kind = "inconsistent_cut_parallel_dirs"
	MissingAttrsFile        Kind = "missing_attrs_file"
	CorruptAttrsFile        Kind = "corrupt_attrs_file"
	NotSerializable         Kind = "not_serializable"
	UnknownMode             Kind = "unknown_mode"
	LabelTypeMismatch       Kind = "label_type_mismatch"
)

// Error wraps a Kind with the offending identifier(s) and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, geoerr.New(geoerr.KeyConflict, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Of reports whether err (or any error it wraps) has the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

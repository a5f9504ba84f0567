package pubsub

import (
	"errors"
	"fmt"
)

// ErrNoData marks a pulled message whose wire record carried no data field.
// Attribute-only messages are legal on the wire; typed consumers that need a
// payload receive this error in the message's result slot. Consumers that
// only care about attributes should use PullRaw instead.
var ErrNoData = errors.New("message contains no data")

// Stage identifies the step of the pull decode chain that failed.
type Stage string

const (
	StageNoData       Stage = "no-data"
	StageDecodeBase64 Stage = "decode-base64"
	StageParseJSON    Stage = "parse-json"
	StageTransform    Stage = "transform"
	StageUnmarshal    Stage = "unmarshal"
)

// MessageError records the failure of a single pulled message somewhere in
// the decode/transform/unmarshal chain. It lives in that message's result
// slot and never aborts the surrounding batch.
type MessageError struct {
	Stage Stage
	Err   error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message decode failed at stage %s: %v", e.Stage, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// MissingAttributeError is returned by InsertAttribute when the message does
// not carry the requested attribute.
type MissingAttributeError struct {
	Key string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("missing attribute `%s`", e.Key)
}

// UnexpectedValueError is returned by a transform that requires a JSON
// object but was handed something else (an array or a scalar).
type UnexpectedValueError struct {
	Value any
}

func (e *UnexpectedValueError) Error() string {
	return fmt.Sprintf("unexpected JSON value `%v`", e.Value)
}

// UnknownVersionError is returned by VersionedTypeTag for a version
// attribute it does not understand.
type UnknownVersionError struct {
	Version string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unknown version `%s`", e.Version)
}

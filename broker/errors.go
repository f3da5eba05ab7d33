package broker

import "fmt"

// Code is a machine-readable SQS error code, as listed in spec.md §6.
type Code string

const (
	CodeQueueAlreadyExists         Code = "QueueAlreadyExists"
	CodeQueueDoesNotExist          Code = "QueueDoesNotExist"
	CodeInvalidAttributeName       Code = "InvalidAttributeName"
	CodeInvalidAttributeValue      Code = "InvalidAttributeValue"
	CodeInvalidParameterValue      Code = "InvalidParameterValue"
	CodeMissingParameter           Code = "MissingParameter"
	CodeReceiptHandleIsInvalid     Code = "ReceiptHandleIsInvalid"
	CodeMessageTooLong             Code = "MessageTooLong"
	CodeBatchEntryIdsNotDistinct   Code = "BatchEntryIdsNotDistinct"
	CodeEmptyBatchRequest          Code = "EmptyBatchRequest"
	CodeTooManyEntriesInBatch      Code = "TooManyEntriesInBatchRequest"
	CodeInvalidBatchEntryId        Code = "InvalidBatchEntryId"
	CodePurgeQueueInProgress       Code = "PurgeQueueInProgress"
	CodeInternal                   Code = "InternalFailure"
)

// Error is the single error type the broker package returns. Kind
// determines the HTTP status an adapter should use; Code is the
// SQS-compatible wire code.
type Error struct {
	Kind    ErrorKind
	Code    Code
	Message string
}

// ErrorKind buckets errors the way spec.md §7 does, independent of the
// exact wire code, so adapters can pick an HTTP status without a switch
// over every Code value.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindConflict
	KindLimitExceeded
	KindInternal
)

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func newConflictErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func newLimitErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindLimitExceeded, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrQueueDoesNotExist builds the error returned for a missing queue; a
// caller detects it by its Code, CodeQueueDoesNotExist.
func ErrQueueDoesNotExist(queueName string) *Error {
	return newNotFoundErr(CodeQueueDoesNotExist, "The specified queue %s does not exist.", queueName)
}

// ErrQueueAlreadyExists signals CreateQueue was called again with
// different attributes than the existing queue.
func ErrQueueAlreadyExists(queueName string) *Error {
	return newConflictErr(CodeQueueAlreadyExists, "A queue named %s already exists with different attributes.", queueName)
}

// ErrReceiptHandleInvalid covers every case in spec.md §4.1 where a
// receipt handle no longer authorizes an operation: unknown handle,
// already-deleted message, or a handle whose visibility window expired.
func ErrReceiptHandleInvalid() *Error {
	return newNotFoundErr(CodeReceiptHandleIsInvalid, "The specified receipt handle isn't valid.")
}

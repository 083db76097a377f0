// Package apperr defines the closed set of error kinds surfaced by a retrieval.
// Every step-local failure is wrapped into an *Error carrying the kind, the step
// that failed and the underlying cause, so the HTTP layer can map it to a
// structured response without inspecting message strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind 标记错误类别，HTTP 层据此决定状态码与对外文案。
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindResolution   Kind = "resolution_failed"
	KindUpstream     Kind = "upstream_failed"
	KindIO           Kind = "storage_failed"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// ErrNoMedia 表示解析成功结束但没有得到可下载的媒体地址，HTTP 层映射为 404。
var ErrNoMedia = errors.New("no download URL found")

// Error 记录失败的步骤与根因，支持 errors.Is/As 穿透。
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Step, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 以文本原因构造指定类别的错误。
func New(kind Kind, step, reason string) *Error {
	return &Error{Kind: kind, Step: step, Err: errors.New(reason)}
}

// Wrap 为 err 打上类别标签；若 err 已是 *Error 则原样返回，保留最初的步骤信息。
func Wrap(kind Kind, step string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Step: step, Err: err}
}

// KindOf 返回 err 链上第一个 *Error 的类别，未打标签时视为 KindInternal。
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// StepOf 返回失败步骤，未打标签时为空字符串。
func StepOf(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Step
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

package voicevox

import (
	"errors"
	"fmt"
)

// ResultCode 是引擎每次调用返回的结果码。
// 原生整数只能通过 codeOf 查表转换，不做直接的类型重解释。
type ResultCode int32

const (
	OK                           ResultCode = 0
	NotLoadedOpenjtalkDictError  ResultCode = 1
	LoadModelError               ResultCode = 2
	GetSupportedDevicesError     ResultCode = 3
	GPUSupportError              ResultCode = 4
	LoadMetasError               ResultCode = 5
	UninitializedStatusError     ResultCode = 6
	InvalidSpeakerIDError        ResultCode = 7
	InvalidModelIndexError       ResultCode = 8
	InferenceError               ResultCode = 9
	ExtractFullContextLabelError ResultCode = 10
	InvalidUTF8InputError        ResultCode = 11
	ParseKanaError               ResultCode = 12
	InvalidAudioQueryError       ResultCode = 13

	// UnknownError 表示当前版本无法识别的结果码（例如更新版本的引擎）。
	// 原始数值保存在 Error.Raw 中。
	UnknownError ResultCode = -1
)

// resultCodes 是原生结果码到 ResultCode 的映射表。
var resultCodes = map[int32]ResultCode{
	0:  OK,
	1:  NotLoadedOpenjtalkDictError,
	2:  LoadModelError,
	3:  GetSupportedDevicesError,
	4:  GPUSupportError,
	5:  LoadMetasError,
	6:  UninitializedStatusError,
	7:  InvalidSpeakerIDError,
	8:  InvalidModelIndexError,
	9:  InferenceError,
	10: ExtractFullContextLabelError,
	11: InvalidUTF8InputError,
	12: ParseKanaError,
	13: InvalidAudioQueryError,
}

var resultNames = map[ResultCode]string{
	OK:                           "Ok",
	NotLoadedOpenjtalkDictError:  "NotLoadedOpenjtalkDictError",
	LoadModelError:               "LoadModelError",
	GetSupportedDevicesError:     "GetSupportedDevicesError",
	GPUSupportError:              "GpuSupportError",
	LoadMetasError:               "LoadMetasError",
	UninitializedStatusError:     "UninitializedStatusError",
	InvalidSpeakerIDError:        "InvalidSpeakerIdError",
	InvalidModelIndexError:       "InvalidModelIndexError",
	InferenceError:               "InferenceError",
	ExtractFullContextLabelError: "ExtractFullContextLabelError",
	InvalidUTF8InputError:        "InvalidUtf8InputError",
	ParseKanaError:               "ParseKanaError",
	InvalidAudioQueryError:       "InvalidAudioQueryError",
	UnknownError:                 "UnknownError",
}

// codeOf 将原生结果码转换为 ResultCode，未知值返回 UnknownError。
func codeOf(raw int32) ResultCode {
	if c, ok := resultCodes[raw]; ok {
		return c
	}
	return UnknownError
}

func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ResultCode(%d)", int32(c))
}

// Error 让 ResultCode 可以作为 errors.Is 的目标：
//
//	errors.Is(err, voicevox.InvalidSpeakerIDError)
func (c ResultCode) Error() string { return c.String() }

// Error 是一次引擎调用失败后的分类结果，属于调用方可以处理的领域错误。
type Error struct {
	Op      string     // 失败的操作，如 "predict_duration"
	Stage   Stage      // 失败时所处的流水线阶段
	Code    ResultCode // 分类后的结果码
	Raw     int32      // 引擎返回的原始数值
	Message string     // 由引擎提供的描述
	Local   bool       // true 表示在调用越过边界之前就被本地拒绝
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("voicevox: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("voicevox: %s: %s (%s)", e.Op, e.Message, e.Code)
}

// Is 按结果码匹配。
func (e *Error) Is(target error) bool {
	c, ok := target.(ResultCode)
	return ok && c == e.Code
}

// CodeOf 返回 err 链上的结果码；err 不是 *Error 时返回 UnknownError 和 false。
func CodeOf(err error) (ResultCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return UnknownError, false
}

// 契约违例的种类。出现这些错误说明编排层或调用方存在缺陷，
// 用相同输入重试不会成功。
var (
	ErrLengthMismatch    = errors.New("vector length mismatch")
	ErrInvalidUTF8Output = errors.New("engine returned invalid UTF-8")
	ErrNullBuffer        = errors.New("engine returned a null buffer")
)

// Fault 是契约违例，与 Error 的领域错误分类相互独立。
type Fault struct {
	Op     string
	Err    error
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("voicevox: %s: fault: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("voicevox: %s: fault: %v: %s", f.Op, f.Err, f.Detail)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsFault 判断 err 是否为契约违例。
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

func faultf(op string, kind error, format string, args ...any) *Fault {
	return &Fault{Op: op, Err: kind, Detail: fmt.Sprintf(format, args...)}
}

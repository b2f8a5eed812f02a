package voicevox

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iabetor/vvcore/internal/logger"
)

// State 表示引擎句柄的生命周期状态。
type State int

const (
	// StateUninitialized 表示尚未调用 voicevox_initialize。
	StateUninitialized State = iota
	// StateInitialized 表示引擎可用，允许流水线操作。
	StateInitialized
	// StateFinalized 表示已调用 voicevox_finalize，不可恢复。
	StateFinalized
)

var stateNames = [...]string{
	"Uninitialized",
	"Initialized",
	"Finalized",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// validTransition 检查状态转换是否合法：
//
//	Uninitialized → Initialized （初始化成功）
//	Initialized   → Finalized   （Close）
func validTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateInitialized
	case StateInitialized:
		return to == StateFinalized
	}
	return false
}

// Core 是进程级引擎的句柄。
//
// 每个进程同一时刻只能存在一个已初始化的 Core：在前一个 Core 关闭之前再次调用
// New 属于未定义行为，本包不做运行时检查。Core 只能以指针持有，不能复制；
// Close 负责 finalize，Finalized 之后的 Close 是空操作。
type Core struct {
	noCopy noCopy

	native Native
	state  State
	opts   InitializeOptions
	loaded map[uint32]struct{}
}

// New 初始化引擎并返回句柄。
// 辞书无法加载或加速模式不受支持时返回分类后的 *Error。
func New(native Native, opts InitializeOptions) (*Core, error) {
	if native == nil {
		return nil, ErrNativeUnavailable
	}
	if !opts.AccelerationMode.valid() {
		return nil, fmt.Errorf("[voicevox] 未知的加速模式: %d", opts.AccelerationMode)
	}
	if strings.IndexByte(opts.OpenJtalkDictDir, 0) >= 0 {
		return nil, fmt.Errorf("[voicevox] 辞书路径包含 NUL 字节")
	}

	c := &Core{
		native: native,
		state:  StateUninitialized,
		opts:   opts,
		loaded: make(map[uint32]struct{}),
	}

	start := time.Now()
	if raw := native.Initialize(opts); raw != int32(OK) {
		err := c.classify("initialize", raw)
		logger.Warnf("[voicevox] 初始化失败: %v", err)
		return nil, err
	}
	c.transition(StateInitialized)
	if opts.LoadAllModels {
		c.recordPreloaded()
	}

	logger.Infof("[voicevox] 引擎已初始化 (mode=%s, threads=%d, load_all=%v, gpu=%v, 耗时=%s)",
		opts.AccelerationMode, opts.CPUNumThreads, opts.LoadAllModels, native.IsGPUMode(), time.Since(start))
	return c, nil
}

// State 返回当前生命周期状态。
func (c *Core) State() State {
	return c.state
}

// Options 返回初始化时使用的选项。
func (c *Core) Options() InitializeOptions {
	return c.opts
}

// Close 执行 finalize，释放引擎的全部资源。
func (c *Core) Close() error {
	if c.state != StateInitialized {
		return nil
	}
	c.native.Finalize()
	c.transition(StateFinalized)
	c.loaded = make(map[uint32]struct{})
	logger.Info("[voicevox] 引擎已关闭")
	return nil
}

func (c *Core) transition(to State) {
	if !validTransition(c.state, to) {
		// 只有本文件内部调用，出现非法转换说明生命周期逻辑有误
		panic(fmt.Sprintf("voicevox: invalid state transition %s → %s", c.state, to))
	}
	logger.Debugf("[voicevox] %s → %s", c.state, to)
	c.state = to
}

// ready 检查是否处于 Initialized 状态。
func (c *Core) ready(op string) error {
	if c.state != StateInitialized {
		return c.reject(op, UninitializedStatusError)
	}
	return nil
}

// Version 返回引擎版本字符串。
func (c *Core) Version() (string, error) {
	if err := c.ready("get_version"); err != nil {
		return "", err
	}
	return c.staticText("get_version", c.native.Version())
}

// MetasJSON 返回全部语音模型的元信息（JSON 数组）。
func (c *Core) MetasJSON() (string, error) {
	if err := c.ready("get_metas_json"); err != nil {
		return "", err
	}
	return c.staticText("get_metas_json", c.native.MetasJSON())
}

// SupportedDevicesJSON 返回各类设备的支持情况（JSON 对象）。
func (c *Core) SupportedDevicesJSON() (string, error) {
	if err := c.ready("get_supported_devices_json"); err != nil {
		return "", err
	}
	return c.staticText("get_supported_devices_json", c.native.SupportedDevicesJSON())
}

// IsGPUMode 返回是否运行在 GPU 模式。未初始化时为 false。
func (c *Core) IsGPUMode() bool {
	if c.state != StateInitialized {
		return false
	}
	return c.native.IsGPUMode()
}

// IsModelLoaded 返回指定说话人的模型是否已加载。未初始化时为 false。
func (c *Core) IsModelLoaded(speakerID uint32) bool {
	if c.state != StateInitialized {
		return false
	}
	return c.native.IsModelLoaded(speakerID)
}

// LoadModel 加载指定说话人的模型，已加载时直接返回。
func (c *Core) LoadModel(speakerID uint32) error {
	const op = "load_model"
	if err := c.ready(op); err != nil {
		return err
	}
	if c.native.IsModelLoaded(speakerID) {
		c.loaded[speakerID] = struct{}{}
		return nil
	}

	start := time.Now()
	if raw := c.native.LoadModel(speakerID); raw != int32(OK) {
		err := c.classify(op, raw)
		logger.Warnf("[voicevox] 加载模型失败: speaker=%d, %v", speakerID, err)
		return err
	}
	c.loaded[speakerID] = struct{}{}
	logger.Infof("[voicevox] 模型已加载: speaker=%d, 耗时=%s", speakerID, time.Since(start))
	return nil
}

// recordPreloaded 把 load_all_models 在初始化时加载的说话人记入 loaded。
func (c *Core) recordPreloaded() {
	var metas []struct {
		Styles []struct {
			ID uint32 `json:"id"`
		} `json:"styles"`
	}
	if err := json.Unmarshal([]byte(c.native.MetasJSON()), &metas); err != nil {
		logger.Warnf("[voicevox] 解析元信息失败，已加载说话人列表可能不完整: %v", err)
		return
	}
	for _, m := range metas {
		for _, s := range m.Styles {
			if c.native.IsModelLoaded(s.ID) {
				c.loaded[s.ID] = struct{}{}
			}
		}
	}
}

// LoadedSpeakers 返回已加载的说话人，按 ID 升序。
// 包括通过 LoadModel 加载的和初始化时 load_all_models 加载的。
func (c *Core) LoadedSpeakers() []uint32 {
	ids := make([]uint32, 0, len(c.loaded))
	for id := range c.loaded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ErrorMessage 向引擎查询结果码的描述，保证措辞与引擎一致。
func (c *Core) ErrorMessage(code ResultCode) string {
	if code == UnknownError {
		return ""
	}
	return c.native.ErrorMessage(int32(code))
}

// classify 把非零原生结果码转换为 *Error。
func (c *Core) classify(op string, raw int32) error {
	code := codeOf(raw)
	e := &Error{Op: op, Stage: stageOf(op), Code: code, Raw: raw}
	if code == UnknownError {
		e.Message = fmt.Sprintf("unrecognized result code %d", raw)
	} else {
		e.Message = c.native.ErrorMessage(raw)
	}
	return e
}

// reject 生成在本地拒绝、没有越过边界的 *Error。
func (c *Core) reject(op string, code ResultCode) error {
	return &Error{Op: op, Stage: stageOf(op), Code: code, Raw: int32(code), Message: c.ErrorMessage(code), Local: true}
}

func (c *Core) staticText(op, s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", faultf(op, ErrInvalidUTF8Output, "%d bytes", len(s))
	}
	return s, nil
}

//go:build !voicevox

package voicevox

// NewNative 在未链接原生引擎的构建中总是返回 ErrNativeUnavailable。
func NewNative() (Native, error) {
	return nil, ErrNativeUnavailable
}

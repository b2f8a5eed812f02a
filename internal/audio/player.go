package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/vvcore/internal/logger"
)

// Player 使用 malgo (miniaudio) 把合成结果送到默认扬声器。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels uint32
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建播放器。channels 通常为 1。
func NewPlayer(channels int) (*Player, error) {
	if channels <= 0 {
		channels = 1
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx, channels: uint32(channels)}, nil
}

// PlayWAV 解析 WAV 数据并阻塞播放。
func (p *Player) PlayWAV(ctx context.Context, data []byte) error {
	w, err := ParseWAV(data)
	if err != nil {
		return fmt.Errorf("解析合成结果失败: %w", err)
	}
	logger.Debugf("[audio] 播放 %v 音频 (%d Hz)", Duration(w.Frames(), w.SampleRate), w.SampleRate)
	return p.Play(ctx, w.Mono(), w.SampleRate)
}

// Play 播放单声道 float32 样本，多声道输出时复制到每个声道。
// 阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("播放器已关闭")
	}
	p.mu.Unlock()

	pcm := p.interleave(Float32ToInt16(samples))
	pos := 0
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = p.channels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount) * int(p.channels) * 2
			n := copy(out[:need], pcm[pos:])
			clear(out[n:need])
			pos += n
			if n < need {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debug("[audio] 播放完成")
		return nil
	}
}

// interleave 把单声道样本复制到每个输出声道。
func (p *Player) interleave(mono []int16) []byte {
	if p.channels == 1 {
		return Int16ToBytes(mono)
	}
	out := make([]int16, 0, len(mono)*int(p.channels))
	for _, s := range mono {
		for c := uint32(0); c < p.channels; c++ {
			out = append(out, s)
		}
	}
	return Int16ToBytes(out)
}

// Close 释放播放上下文，可重复调用。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}

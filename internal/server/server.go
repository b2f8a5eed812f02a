// Package server 通过 HTTP 暴露 VOICEVOX 引擎，接口形状参考 VOICEVOX ENGINE。
//
// 所有引擎调用都经过 voicevox.Exclusive 串行化；缓冲区在持锁期间复制并释放。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iabetor/vvcore/internal/logger"
	"github.com/iabetor/vvcore/internal/tts"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// maxBodyBytes 限制请求体大小，AudioQuery 和特征向量都远小于此值。
const maxBodyBytes = 8 << 20

// Options 服务配置。
type Options struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TTS 是 /tts 与 /synthesis 的默认选项。
	TTS voicevox.TTSOptions
}

// Server 是 HTTP 服务。
type Server struct {
	ex     *voicevox.Exclusive
	engine tts.WAVEngine
	opts   Options
	mux    *http.ServeMux
}

// New 创建服务。engine 负责 /tts（通常带缓存），其余接口直接使用 ex。
func New(ex *voicevox.Exclusive, engine tts.WAVEngine, opts Options) *Server {
	s := &Server{ex: ex, engine: engine, opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.HandleFunc("GET /speakers", s.handleSpeakers)
	s.mux.HandleFunc("GET /supported_devices", s.handleSupportedDevices)
	s.mux.HandleFunc("POST /initialize_speaker", s.handleInitializeSpeaker)
	s.mux.HandleFunc("GET /is_initialized_speaker", s.handleIsInitializedSpeaker)
	s.mux.HandleFunc("POST /audio_query", s.handleAudioQuery)
	s.mux.HandleFunc("POST /synthesis", s.handleSynthesis)
	s.mux.HandleFunc("POST /tts", s.handleTTS)
	s.mux.HandleFunc("POST /predict_duration", s.handlePredictDuration)
	s.mux.HandleFunc("POST /predict_intonation", s.handlePredictIntonation)
	s.mux.HandleFunc("POST /decode", s.handleDecode)
}

// Handler 返回带请求 ID 和访问日志的 http.Handler。
func (s *Server) Handler() http.Handler {
	return withRequestID(s.mux)
}

// Run 监听并服务，ctx 取消后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定的 listener 上服务。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] 正在监听 %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("[server] 正在关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭服务失败: %w", err)
		}
		return nil
	}
}

type ctxKey struct{}

// log 返回绑定了请求 ID 的 logger。
func log(r *http.Request) *zap.SugaredLogger {
	if l, ok := r.Context().Value(ctxKey{}).(*zap.SugaredLogger); ok {
		return l
	}
	return logger.L
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		l := logger.With("request_id", id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, l))
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		l.Infof("[server] %s %s → %d (%d 字节, 耗时=%s)", r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
	})
}

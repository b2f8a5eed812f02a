package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/iabetor/vvcore/internal/voicevox"
)

// errorBody 是错误响应的 JSON 结构。
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Stage string `json:"stage,omitempty"`
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// statusOf 把错误映射为 HTTP 状态码。
func statusOf(err error) int {
	var br *badRequest
	var maxBytes *http.MaxBytesError
	var ve *voicevox.Error
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ve):
		switch ve.Code {
		case voicevox.InvalidSpeakerIDError, voicevox.InvalidModelIndexError:
			return http.StatusNotFound
		case voicevox.UninitializedStatusError:
			return http.StatusServiceUnavailable
		}
		return http.StatusUnprocessableEntity
	}
	// 包括 *voicevox.Fault：调用方造成的长度不一致在进入引擎前已经作为 badRequest 拒绝
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var ve *voicevox.Error
	if errors.As(err, &ve) {
		body.Code = ve.Code.String()
		body.Stage = ve.Stage.String()
	}
	if status >= 500 {
		log(r).Errorf("[server] %s 失败: %v", r.URL.Path, err)
	} else {
		log(r).Warnf("[server] %s 失败: %v", r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, raw string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, raw)
}

func writeWAV(w http.ResponseWriter, wav []byte) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	_, _ = w.Write(wav)
}

// speakerParam 解析 ?speaker=，缺失或非法时返回 badRequest。
func speakerParam(r *http.Request) (uint32, error) {
	v := r.URL.Query().Get("speaker")
	if v == "" {
		return 0, badRequestf("缺少 speaker 参数")
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, badRequestf("非法的 speaker 参数: %q", v)
	}
	return uint32(id), nil
}

// boolParam 解析可选的布尔参数。
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequestf("非法的 %s 参数: %q", name, v)
	}
	return b, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return badRequestf("请求体不是合法的 JSON: %v", err)
	}
	return nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	var version string
	err := s.ex.Do(func(c *voicevox.Core) (err error) {
		version, err = c.Version()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	var metas string
	err := s.ex.Do(func(c *voicevox.Core) (err error) {
		metas, err = c.MetasJSON()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, metas)
}

func (s *Server) handleSupportedDevices(w http.ResponseWriter, r *http.Request) {
	var devices string
	err := s.ex.Do(func(c *voicevox.Core) (err error) {
		devices, err = c.SupportedDevicesJSON()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, devices)
}

func (s *Server) handleInitializeSpeaker(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ex.Do(func(c *voicevox.Core) error { return c.LoadModel(speaker) }); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIsInitializedSpeaker(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var loaded bool
	_ = s.ex.Do(func(c *voicevox.Core) error {
		loaded = c.IsModelLoaded(speaker)
		return nil
	})
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleAudioQuery(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kana, err := boolParam(r, "kana", s.opts.TTS.Kana)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text := r.URL.Query().Get("text")

	var query voicevox.AudioQuery
	err = s.ex.Do(func(c *voicevox.Core) error {
		if err := c.LoadModel(speaker); err != nil {
			return err
		}
		q, err := c.AudioQuery(text, speaker, voicevox.AudioQueryOptions{Kana: kana})
		query = q
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, string(query))
}

func (s *Server) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	upspeak, err := boolParam(r, "enable_interrogative_upspeak", s.opts.TTS.EnableInterrogativeUpspeak)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var wav []byte
	err = s.ex.Do(func(c *voicevox.Core) error {
		if err := c.LoadModel(speaker); err != nil {
			return err
		}
		buf, err := c.Synthesis(voicevox.AudioQuery(body), speaker, voicevox.SynthesisOptions{EnableInterrogativeUpspeak: upspeak})
		if err != nil {
			return err
		}
		defer buf.Close()
		wav = buf.Copy()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeWAV(w, wav)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wav, err := s.engine.SynthesizeWAV(r.Context(), r.URL.Query().Get("text"), speaker)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeWAV(w, wav)
}

type durationRequest struct {
	Phonemes []int64 `json:"phoneme_vector"`
}

type durationResponse struct {
	Durations []float32 `json:"durations"`
}

func (s *Server) handlePredictDuration(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := durationResponse{Durations: []float32{}}
	err = s.ex.Do(func(c *voicevox.Core) error {
		if err := c.LoadModel(speaker); err != nil {
			return err
		}
		buf, err := c.PredictDuration(req.Phonemes, speaker)
		if err != nil {
			return err
		}
		defer buf.Close()
		resp.Durations = append(resp.Durations, buf.Copy()...)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type intonationRequest struct {
	Vowels             []int64 `json:"vowel_phoneme_vector"`
	Consonants         []int64 `json:"consonant_phoneme_vector"`
	StartAccents       []int64 `json:"start_accent_vector"`
	EndAccents         []int64 `json:"end_accent_vector"`
	StartAccentPhrases []int64 `json:"start_accent_phrase_vector"`
	EndAccentPhrases   []int64 `json:"end_accent_phrase_vector"`
}

type intonationResponse struct {
	F0 []float32 `json:"f0"`
}

func (s *Server) handlePredictIntonation(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req intonationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := voicevox.IntonationInput{
		Vowels:             req.Vowels,
		Consonants:         req.Consonants,
		StartAccents:       req.StartAccents,
		EndAccents:         req.EndAccents,
		StartAccentPhrases: req.StartAccentPhrases,
		EndAccentPhrases:   req.EndAccentPhrases,
	}
	if _, err := in.Len(); err != nil {
		s.writeError(w, r, badRequestf("%v", err))
		return
	}

	resp := intonationResponse{F0: []float32{}}
	err = s.ex.Do(func(c *voicevox.Core) error {
		if err := c.LoadModel(speaker); err != nil {
			return err
		}
		buf, err := c.PredictIntonation(in, speaker)
		if err != nil {
			return err
		}
		defer buf.Close()
		resp.F0 = append(resp.F0, buf.Copy()...)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type decodeRequest struct {
	F0       []float32 `json:"f0"`
	Phonemes []float32 `json:"phoneme"`
}

type decodeResponse struct {
	Wave []float32 `json:"wave"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	speaker, err := speakerParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req decodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var resp decodeResponse
	err = s.ex.Do(func(c *voicevox.Core) error {
		if err := c.LoadModel(speaker); err != nil {
			return err
		}
		buf, err := c.Decode(req.Phonemes, req.F0, speaker)
		if err != nil {
			return err
		}
		defer buf.Close()
		resp.Wave = buf.Copy()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

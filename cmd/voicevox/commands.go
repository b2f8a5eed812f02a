package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iabetor/vvcore/internal/audio"
	"github.com/iabetor/vvcore/internal/server"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// synthFlags 是合成类命令共用的参数。
type synthFlags struct {
	speaker uint32
	kana    bool
	upspeak bool
	out     string
}

func (a *app) bindSynthFlags(cmd *cobra.Command, f *synthFlags) {
	cmd.Flags().Uint32VarP(&f.speaker, "speaker", "s", 0, "说话人 ID（默认取配置）")
	cmd.Flags().BoolVar(&f.kana, "kana", false, "把输入当作 AquesTalk 风格的假名")
	cmd.Flags().BoolVar(&f.upspeak, "upspeak", true, "疑问句末尾升调")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "输出文件，默认写到标准输出")
}

// resolve 用配置补齐未显式指定的参数。
func (a *app) resolve(cmd *cobra.Command, f *synthFlags) voicevox.TTSOptions {
	if !cmd.Flags().Changed("speaker") {
		f.speaker = a.cfg.Synthesis.DefaultSpeaker
	}
	opts := a.cfg.TTSOptions()
	if cmd.Flags().Changed("kana") {
		opts.Kana = f.kana
	}
	if cmd.Flags().Changed("upspeak") {
		opts.EnableInterrogativeUpspeak = f.upspeak
	}
	return opts
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "已写入 %s (%d 字节)\n", path, len(data))
	return nil
}

// printJSON 缩进输出引擎返回的 JSON。
func printJSON(cmd *cobra.Command, raw string) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return fmt.Errorf("引擎返回的 JSON 无法解析: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(cmd.OutOrStdout())
	return err
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "vvcore %s\n", version)
			r, err := a.openEngine()
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  引擎: 不可用 (%v)\n", err)
				return nil
			}
			defer r.Close()
			return r.ex.Do(func(c *voicevox.Core) error {
				v, err := c.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  引擎: voicevox_core %s (gpu=%v)\n", v, c.IsGPUMode())
				return nil
			})
		},
	}
}

func (a *app) newMetasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metas",
		Short: "列出全部说话人及风格",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printQuery(cmd, (*voicevox.Core).MetasJSON)
		},
	}
}

func (a *app) newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "显示支持的推理设备",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printQuery(cmd, (*voicevox.Core).SupportedDevicesJSON)
		},
	}
}

func (a *app) printQuery(cmd *cobra.Command, query func(*voicevox.Core) (string, error)) error {
	r, err := a.openEngine()
	if err != nil {
		return err
	}
	defer r.Close()

	var raw string
	if err := r.ex.Do(func(c *voicevox.Core) (err error) {
		raw, err = query(c)
		return err
	}); err != nil {
		return err
	}
	return printJSON(cmd, raw)
}

func (a *app) newQueryCommand() *cobra.Command {
	var f synthFlags
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "生成 AudioQuery (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.resolve(cmd, &f)
			r, err := a.openEngine()
			if err != nil {
				return err
			}
			defer r.Close()

			var query voicevox.AudioQuery
			err = r.ex.Do(func(c *voicevox.Core) error {
				if err := c.LoadModel(f.speaker); err != nil {
					return err
				}
				q, err := c.AudioQuery(args[0], f.speaker, opts.QueryOptions())
				query = q
				return err
			})
			if err != nil {
				return err
			}
			if f.out != "" {
				return writeOutput(cmd, f.out, []byte(query))
			}
			return printJSON(cmd, string(query))
		},
	}
	a.bindSynthFlags(cmd, &f)
	return cmd
}

func (a *app) newSynthCommand() *cobra.Command {
	var f synthFlags
	var in string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "由 AudioQuery 合成 WAV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.resolve(cmd, &f)
			query, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			r, err := a.openEngine()
			if err != nil {
				return err
			}
			defer r.Close()

			var wav []byte
			err = r.ex.Do(func(c *voicevox.Core) error {
				if err := c.LoadModel(f.speaker); err != nil {
					return err
				}
				buf, err := c.Synthesis(voicevox.AudioQuery(query), f.speaker, opts.SynthesisOptions())
				if err != nil {
					return err
				}
				defer buf.Close()
				wav = buf.Copy()
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, f.out, wav)
		},
	}
	a.bindSynthFlags(cmd, &f)
	cmd.Flags().StringVarP(&in, "in", "i", "-", "AudioQuery 文件，- 表示标准输入")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return data, nil
}

func (a *app) newTTSCommand() *cobra.Command {
	var f synthFlags
	cmd := &cobra.Command{
		Use:   "tts <text>",
		Short: "直接把文本合成为 WAV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.resolve(cmd, &f)
			r, engine, err := a.newTTSEngine(f.speaker, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			wav, err := engine.SynthesizeWAV(cmd.Context(), strings.Join(args, " "), f.speaker)
			if err != nil {
				return err
			}
			return writeOutput(cmd, f.out, wav)
		},
	}
	a.bindSynthFlags(cmd, &f)
	return cmd
}

func (a *app) newSayCommand() *cobra.Command {
	var f synthFlags
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "合成并通过默认扬声器播放",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.resolve(cmd, &f)
			r, engine, err := a.newTTSEngine(f.speaker, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			wav, err := engine.SynthesizeWAV(cmd.Context(), strings.Join(args, " "), f.speaker)
			if err != nil {
				return err
			}
			if f.out != "" {
				if err := writeOutput(cmd, f.out, wav); err != nil {
					return err
				}
			}

			player, err := audio.NewPlayer(a.cfg.Audio.Channels)
			if err != nil {
				return err
			}
			defer player.Close()
			return player.PlayWAV(cmd.Context(), wav)
		},
	}
	a.bindSynthFlags(cmd, &f)
	return cmd
}

func (a *app) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			opts := a.cfg.TTSOptions()
			r, engine, err := a.newTTSEngine(a.cfg.Synthesis.DefaultSpeaker, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			srv := server.New(r.ex, engine, server.Options{
				Listen:       a.cfg.Server.Listen,
				ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
				TTS:          opts,
			})
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "监听地址，覆盖配置")
	return cmd
}

func (a *app) newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "管理合成缓存",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "显示缓存条目数",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r := &resources{}
				defer r.Close()
				if err := a.openCacheForced(r); err != nil {
					return err
				}
				n, err := r.cache.Len()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d 条 (上限 %d)\n", r.db.Path(), n, a.cfg.Cache.MaxEntries)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "清空缓存",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r := &resources{}
				defer r.Close()
				if err := a.openCacheForced(r); err != nil {
					return err
				}
				if err := r.cache.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "缓存已清空")
				return nil
			},
		},
	)
	return cmd
}

// openCacheForced 打开缓存数据库，忽略 cache.enabled。
func (a *app) openCacheForced(r *resources) error {
	enabled := a.cfg.Cache.Enabled
	a.cfg.Cache.Enabled = true
	defer func() { a.cfg.Cache.Enabled = enabled }()
	return a.openCache(r)
}

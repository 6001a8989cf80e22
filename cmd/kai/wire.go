package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/teslashibe/go-kai/internal/config"
	"github.com/teslashibe/go-kai/internal/httpc"
	"github.com/teslashibe/go-kai/internal/log"
	"github.com/teslashibe/go-kai/pkg/audiostore"
	"github.com/teslashibe/go-kai/pkg/bridge"
	"github.com/teslashibe/go-kai/pkg/command"
	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/emotion"
	"github.com/teslashibe/go-kai/pkg/hub"
	"github.com/teslashibe/go-kai/pkg/inference"
	"github.com/teslashibe/go-kai/pkg/kai"
	"github.com/teslashibe/go-kai/pkg/reply"
	"github.com/teslashibe/go-kai/pkg/server"
	"github.com/teslashibe/go-kai/pkg/session"
	"github.com/teslashibe/go-kai/pkg/speech"
	"github.com/teslashibe/go-kai/pkg/tts"
)

// application holds every long-lived component.
type application struct {
	hub     *hub.Hub
	server  *server.Server
	emotion *emotion.Adapter
	speaker *speech.Speaker
	llm     inference.Provider
}

// Close releases model and provider resources.
func (a *application) Close() {
	a.emotion.Close()
	a.speaker.Close()
	if a.llm != nil {
		a.llm.Close()
	}
}

func build(cfg *config.Config, version string) (*application, error) {
	logger := log.L()
	counters := diag.New()

	client := httpc.NewClient(cfg.Reply.Timeout)
	if cfg.Proxy != "" {
		pc, err := httpc.NewProxyClient(cfg.Proxy, cfg.Reply.Timeout)
		if err != nil {
			return nil, err
		}
		client = pc
	}

	llm, err := buildLLM(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	opts := reply.Options{
		Model:       cfg.Reply.Model,
		MaxTokens:   cfg.Reply.MaxTokens,
		Temperature: cfg.Reply.Temperature,
	}
	var strategy reply.Strategy
	if llm != nil {
		strategy, err = buildStrategy(cfg, llm, opts)
		if err != nil {
			return nil, err
		}
	}
	responder := reply.NewResponder(reply.ResponderConfig{
		Strategy: strategy,
		Provider: llm,
		Options:  opts,
		Timeout:  cfg.Reply.Timeout,
		Counters: counters,
		Logger:   logger,
	})

	store, err := audiostore.New(cfg.Speech.AudioDir,
		audiostore.WithMaxAge(cfg.Speech.MaxAge),
		audiostore.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	speaker := speech.New(buildTTS(cfg, client, logger), store, counters, logger)

	adapter := emotion.NewAdapter(buildClassifier(cfg, llm, logger),
		emotion.WithMinConfidence(cfg.Emotion.MinConfidence),
		emotion.WithCounters(counters),
		emotion.WithLogger(logger),
	)

	h := hub.New(logger)
	kcfg := kai.Config{
		Emitter:       h,
		Sessions:      session.NewRegistry(),
		Emotion:       adapter,
		Replies:       responder,
		Speech:        speaker,
		EmotionSpeech: speechMode(cfg.Emotion.Speech),
		Cooldown:      cfg.Emotion.Cooldown,
		Counters:      counters,
		Logger:        logger,
	}
	if cfg.Commands.Enabled {
		kcfg.Commands = command.New(command.BrowserLauncher{},
			command.WithCounters(counters),
			command.WithLogger(logger),
		)
	}
	if cfg.Telegram.Enabled {
		bot, err := bridge.Dial(cfg.Telegram.BotToken, client)
		if err != nil {
			return nil, err
		}
		kcfg.Bridge = bridge.New(bot, cfg.Telegram.AllowedID,
			bridge.WithCounters(counters),
			bridge.WithLogger(logger),
		)
		logger.Info("bridge mode: chat goes to the Telegram operator")
	}

	srv := server.New(server.Config{
		Hub:       h,
		Kai:       kai.New(kcfg),
		Counters:  counters,
		StaticDir: cfg.StaticDir,
		AudioDir:  cfg.Speech.AudioDir,
		Version:   version,
		AccessLog: accessLog(cfg),
		Logger:    logger,
	})

	return &application{
		hub:     h,
		server:  srv,
		emotion: adapter,
		speaker: speaker,
		llm:     llm,
	}, nil
}

// accessLog enables per-request lines at debug level only.
func accessLog(cfg *config.Config) io.Writer {
	if log.ParseLevel(cfg.LogLevel) > slog.LevelDebug {
		return nil
	}
	return os.Stdout
}

// buildLLM returns nil when no usable backend is configured; replies then
// fall back to the offline text.
func buildLLM(cfg *config.Config, client *http.Client, logger *slog.Logger) (inference.Provider, error) {
	common := []inference.Option{
		inference.WithHTTPClient(client),
		inference.WithTemperature(cfg.Reply.Temperature),
		inference.WithMaxTokens(cfg.Reply.MaxTokens),
		inference.WithLogger(logger),
	}

	gemini := func() (inference.Provider, error) {
		opts := append([]inference.Option{inference.WithAPIKey(cfg.Reply.GeminiAPIKey)}, common...)
		if cfg.Reply.Model != "" {
			opts = append(opts, inference.WithModel(cfg.Reply.Model))
		}
		return inference.NewGemini(opts...)
	}
	openai := func() (inference.Provider, error) {
		opts := append([]inference.Option{
			inference.WithAPIKey(cfg.Reply.OpenAIAPIKey),
			inference.WithModel(cfg.Reply.OpenAIModel),
		}, common...)
		return inference.NewOpenAI(opts...)
	}

	var (
		p   inference.Provider
		err error
	)
	switch cfg.Reply.Provider {
	case "none":
		return nil, nil
	case "gemini":
		p, err = gemini()
	case "openai":
		p, err = openai()
	case "chain":
		var providers []inference.Provider
		for _, mk := range []func() (inference.Provider, error){gemini, openai} {
			if q, e := mk(); e == nil {
				providers = append(providers, q)
			}
		}
		if len(providers) == 0 {
			err = inference.ErrNoAPIKey
			break
		}
		p, err = inference.NewChainWithLogger(logger, providers...)
	default:
		return nil, fmt.Errorf("config: unknown reply provider %q", cfg.Reply.Provider)
	}
	if err != nil {
		logger.Warn("reply backend unavailable, using offline replies", "provider", cfg.Reply.Provider, "error", err)
		return nil, nil
	}
	return p, nil
}

func buildStrategy(cfg *config.Config, p inference.Provider, opts reply.Options) (reply.Strategy, error) {
	switch cfg.Reply.Mode {
	case config.ReplyStateless:
		return reply.NewStateless(p, opts), nil
	case config.ReplySession:
		return reply.NewChatHandle(p, opts), nil
	default:
		return reply.NewWindow(p, opts, cfg.Reply.HistorySize)
	}
}

// buildTTS returns nil when speech is disabled or the engine cannot start.
func buildTTS(cfg *config.Config, client *http.Client, logger *slog.Logger) tts.Provider {
	common := []tts.Option{tts.WithHTTPClient(client), tts.WithLogger(logger)}

	gtts := func() (tts.Provider, error) {
		return tts.NewGoogleTranslate(append(common, tts.WithLanguage(cfg.Speech.Lang))...), nil
	}
	openai := func() (tts.Provider, error) {
		opts := append([]tts.Option{tts.WithAPIKey(cfg.Reply.OpenAIAPIKey)}, common...)
		if cfg.Speech.Voice != "" {
			opts = append(opts, tts.WithVoice(cfg.Speech.Voice))
		}
		return tts.NewOpenAI(opts...)
	}
	eleven := func() (tts.Provider, error) {
		return tts.NewElevenLabs(append([]tts.Option{
			tts.WithAPIKey(cfg.Speech.ElevenLabsAPIKey),
			tts.WithVoice(cfg.Speech.Voice),
		}, common...)...)
	}

	var (
		p   tts.Provider
		err error
	)
	switch cfg.Speech.Provider {
	case "none":
		return nil
	case "openai":
		p, err = openai()
	case "elevenlabs":
		p, err = eleven()
	case "chain":
		var providers []tts.Provider
		for _, mk := range []func() (tts.Provider, error){eleven, openai, gtts} {
			if q, e := mk(); e == nil {
				providers = append(providers, q)
			}
		}
		p, err = tts.NewChainWithLogger(logger, providers...)
	default:
		p, err = gtts()
	}
	if err != nil {
		logger.Warn("speech disabled", "provider", cfg.Speech.Provider, "error", err)
		return nil
	}
	return p
}

// buildClassifier returns nil when emotion detection is disabled or the
// models cannot load.
func buildClassifier(cfg *config.Config, llm inference.Provider, logger *slog.Logger) emotion.Classifier {
	switch cfg.Emotion.Backend {
	case "none":
		return nil
	case "vision":
		if llm == nil {
			logger.Warn("vision emotion backend needs a reply provider; emotion disabled")
			return nil
		}
		return emotion.NewVision(llm, "")
	default:
		oc := emotion.DefaultONNXConfig()
		oc.FaceModel = cfg.Emotion.FaceModel
		oc.EmotionModel = cfg.Emotion.EmotionModel
		c, err := emotion.NewONNX(oc)
		if err != nil {
			logger.Warn("emotion models unavailable; emotion disabled", "error", err)
			return nil
		}
		return c
	}
}

func speechMode(mode string) kai.SpeechMode {
	switch mode {
	case config.EmotionSpeechCanned:
		return kai.SpeechCanned
	case config.EmotionSpeechGenerated:
		return kai.SpeechGenerated
	default:
		return kai.SpeechOff
	}
}

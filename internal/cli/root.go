package cli

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"voxpro/internal/app"
	"voxpro/internal/assistant"
	"voxpro/internal/config"
	"voxpro/internal/logging"
	"voxpro/internal/models"
	"voxpro/internal/web"
)

type rootFlags struct {
	envFile  string
	settings string
	logLevel string
	proxy    string
	mute     bool
}

func (f *rootFlags) build(ctx context.Context, opt app.Options) (*app.App, error) {
	cfg, err := config.Load(f.envFile, f.settings)
	if err != nil {
		return nil, err
	}
	if f.mute {
		cfg.Speech = "none"
	}
	opt.Config = cfg
	opt.Proxy = f.proxy
	return app.Build(ctx, opt)
}

// NewRootCmd builds the standalone voxpro CLI, which runs the assistant in
// process without a daemon.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "voxpro",
		Short: "Voice and text assistant",
		Long:  "voxpro answers spoken or typed requests for weather, encyclopedia lookups, music, web search, time and date.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(cmd.ErrOrStderr(), flags.logLevel)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.envFile, "env", "e", ".env", "Env file path")
	pf.StringVarP(&flags.settings, "config", "c", "", "YAML settings file")
	pf.StringVarP(&flags.logLevel, "log", "l", "warn", "Log level")
	pf.StringVarP(&flags.proxy, "proxy", "p", "", "SOCKS5 proxy address")
	pf.BoolVarP(&flags.mute, "mute", "m", false, "Do not speak answers")

	root.AddCommand(
		newAskCmd(flags),
		newListenCmd(flags),
		newTranscribeCmd(flags),
		newServeCmd(flags),
	)
	return root
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [text]",
		Short: "Answer one typed request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.build(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			it := a.Assistant.Process(cmd.Context(), assistant.Request{
				Text:   strings.Join(args, " "),
				Source: models.SourceText,
			})
			printInteraction(cmd.OutOrStdout(), it)
			return nil
		},
	}
}

func newListenCmd(flags *rootFlags) *cobra.Command {
	var sound string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record one spoken request from the microphone and answer it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.build(cmd.Context(), app.Options{Microphone: true, Sound: sound})
			if err != nil {
				return err
			}
			defer a.Close()

			it, err := a.Assistant.Listen(cmd.Context())
			if err != nil {
				return err
			}
			printInteraction(cmd.OutOrStdout(), it)
			return nil
		},
	}

	cmd.Flags().StringVar(&sound, "sound", "", "mp3 played when listening starts")
	return cmd
}

func newTranscribeCmd(flags *rootFlags) *cobra.Command {
	var ask bool

	cmd := &cobra.Command{
		Use:   "transcribe [file]",
		Short: "Transcribe a wav, mp3, ogg or opus recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.build(cmd.Context(), app.Options{Transcriber: true})
			if err != nil {
				return err
			}
			defer a.Close()

			ft, err := a.FileTranscriber()
			if err != nil {
				return err
			}

			text, err := ft.Transcribe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)

			if ask {
				it := a.Assistant.Process(cmd.Context(), assistant.Request{Text: text, Source: models.SourceVoice})
				printInteraction(cmd.OutOrStdout(), it)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ask, "ask", false, "Also answer the transcribed request")
	return cmd
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr string
		mic  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := flags.build(ctx, app.Options{Microphone: mic})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Listen
			}
			if addr == "" {
				addr = "127.0.0.1:8080"
			}

			srv := web.NewServer(web.Config{
				Service:      a.Assistant,
				HistoryLimit: a.Config.HistoryLimit,
			})
			log.Info("Serving", "addr", addr, "microphone", mic)
			return srv.Serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Listen address (defaults to the listen setting)")
	cmd.Flags().BoolVar(&mic, "mic", false, "Enable the host microphone")
	return cmd
}

package main

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"voxpro/internal/app"
	"voxpro/internal/config"
	"voxpro/internal/ipc"
	"voxpro/internal/logging"
	"voxpro/internal/web"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	settings := cli.StringP("config", "c", "", "YAML settings file")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	httpAddr := cli.String("http", "", "Web front end address, e.g. 127.0.0.1:8080 (empty uses the listen setting)")
	socket := cli.StringP("socket", "s", "", "Control socket path (empty uses the socket setting)")
	noMic := cli.Bool("no-mic", false, "Run without a microphone")
	sound := cli.String("sound", "", "mp3 played when listening starts")
	cli.Parse()

	logging.Setup(os.Stdout, *logLevel)

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*envFile, *settings)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.Socket = *socket
	}
	if *httpAddr != "" {
		cfg.Listen = *httpAddr
	}

	ctl, err := ipc.Listen(cfg.Socket)
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Socket, "err", err)
		os.Exit(1)
	}

	a, err := app.Build(ctx, app.Options{
		Config:     cfg,
		Proxy:      *proxyAddr,
		Microphone: !*noMic,
		Sound:      *sound,
	})
	if err != nil {
		log.Error("Failed to build assistant", "err", err)
		ctl.Close()
		os.Exit(1)
	}

	log.Info("Boot up - successful")

	errc := make(chan error, 2)
	go func() {
		errc <- ctl.Serve(ctx, ipc.NewHandler(a.Assistant, cfg.HistoryLimit))
	}()

	running := 1
	if cfg.Listen != "" {
		running++
		srv := web.NewServer(web.Config{
			Service:      a.Assistant,
			HistoryLimit: cfg.HistoryLimit,
		})
		go func() {
			errc <- srv.Serve(ctx, cfg.Listen)
		}()
	}

	exit := 0
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, cleaning up")
	case err := <-errc:
		running--
		if err != nil {
			log.Error("Server failed", "err", err)
			exit = 1
		}
		stop()
	}

	for ; running > 0; running-- {
		if err := <-errc; err != nil {
			log.Error("Server failed", "err", err)
		}
	}

	if err := ctl.Close(); err != nil {
		log.Warn("Failed to close control socket", "err", err)
	}
	if err := a.Close(); err != nil {
		log.Warn("Failed to release resources", "err", err)
	}

	log.Info("Stopped")
	stop()
	os.Exit(exit)
}

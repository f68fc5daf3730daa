package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/benbjohnson/clock"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/warmcold/pkg/engine"
	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/server"
	"github.com/cyclopcam/warmcold/server/config"
	"github.com/cyclopcam/warmcold/server/session"
)

func main() {
	parser := argparse.NewParser("warmcold", "Live object detection with a warm/cold score overlay")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: "warmcold.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8080"})
	noStart := parser.Flag("", "nostart", &argparse.Options{Help: "Don't start a session until one is requested over the API", Default: false})
	dumpDir := parser.String("", "dump", &argparse.Options{Help: "Write the overlay to overlay.png in this directory, once per second", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg, *configFile, engine.Loader(logger, cfg.CacheDir), session.DefaultSourceFactory(logger, clock.New()))
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	if !*noStart {
		if _, err := srv.StartSession(); err != nil {
			logger.Errorf("Failed to start session: %v", err)
			srv.Shutdown()
			os.Exit(1)
		}
	}

	if *dumpDir != "" {
		go dumpOverlay(logger, srv, filepath.Join(*dumpDir, "overlay.png"))
	}

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(*port); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
	}
	srv.Shutdown()
	<-srv.ShutdownComplete
}

func dumpOverlay(logger logs.Log, srv *server.Server, filename string) {
	lastScene := (*overlay.Scene)(nil)
	for {
		time.Sleep(time.Second)
		scene := srv.Surface.LatestScene()
		if scene == nil || scene == lastScene {
			continue
		}
		lastScene = scene
		b, err := overlay.EncodePNG(scene)
		if err == nil {
			err = os.WriteFile(filename, b, 0644)
		}
		if err != nil {
			logger.Warnf("Failed to dump overlay: %v", err)
			return
		}
	}
}

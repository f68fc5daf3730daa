// Package engine has concrete implementations of the nn.Engine interface, so that you can
// just call one function to load a model, and not need to know about the implementation details.
package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/log"
)

const (
	KindReplay = "replay" // Detections are read from a labels file, one frame at a time
	KindRemote = "remote" // Frames are posted to an HTTP inference server
)

func downloadFile(srcUrl, targetFile string) error {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, resp.Body)
	if err != nil {
		return err
	}
	file.Close()
	return os.Rename(tempFile, targetFile)
}

// If filename is an http(s) URL, download it into cacheDir (unless it's already there),
// and return the local path.
func fetchMetadata(logs log.Log, cacheDir, filename string) (string, error) {
	if !strings.HasPrefix(filename, "http://") && !strings.HasPrefix(filename, "https://") {
		return filename, nil
	}
	diskPath := filepath.Join(cacheDir, filepath.Base(filename))
	if _, err := os.Stat(diskPath); os.IsNotExist(err) {
		logs.Infof("Downloading %v to %v", filename, diskPath)
		if err := downloadFile(filename, diskPath); err != nil {
			return "", fmt.Errorf("Download failed: %w", err)
		}
	} else if err != nil {
		return "", err
	}
	return diskPath, nil
}

// Loader returns an nn.Loader that calls LoadModel.
// cacheDir is where remote metadata files are stored.
func Loader(logs log.Log, cacheDir string) nn.Loader {
	return func(setup *nn.ModelSetup) (nn.Engine, error) {
		return LoadModel(logs, cacheDir, setup)
	}
}

// LoadModel creates an inference engine, and loads its model metadata.
// Failures here are not retried. The caller should surface them to the user.
func LoadModel(logs log.Log, cacheDir string, setup *nn.ModelSetup) (nn.Engine, error) {
	if setup.MetadataPath == "" {
		return nil, fmt.Errorf("No model metadata file specified")
	}
	metadataPath, err := fetchMetadata(logs, cacheDir, setup.MetadataPath)
	if err != nil {
		return nil, err
	}
	config, err := nn.LoadModelMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	delegate := "CPU"
	if setup.UseAcceleration {
		delegate = "GPU"
	}
	logs.Infof("Loading %v model %v (%v x %v, %v classes, %v delegate, %v threads)", setup.Engine, config.Architecture, config.Width, config.Height, len(config.Classes), delegate, setup.NumThreads)

	switch setup.Engine {
	case KindReplay:
		return NewReplay(config, setup.ModelPath)
	case KindRemote:
		return NewRemote(config, setup)
	}
	return nil, fmt.Errorf("Unrecognized inference engine '%v'", setup.Engine)
}

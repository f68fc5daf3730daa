package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/warmcold/pkg/detect"
	"github.com/cyclopcam/warmcold/pkg/engine"
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/pkg/score"
	"github.com/cyclopcam/warmcold/server/config"
	"github.com/disintegration/imaging"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

type predictionJSON struct {
	Plan        string         `json:"plan"`
	ImageWidth  int            `json:"imageWidth"`
	ImageHeight int            `json:"imageHeight"`
	Detections  []nn.Detection `json:"detections"`
	TargetScore float64        `json:"targetScore"`
	Stats       detect.Stats   `json:"stats"`
}

func main() {
	parser := argparse.NewParser("predict", "Run a single image through the detection pipeline")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image (png or jpeg)", Required: true})
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: "warmcold.json"})
	output := parser.File("o", "output", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0664, &argparse.Options{Help: "Output detections JSON", Required: true})
	overlayFile := parser.String("", "overlay", &argparse.Options{Help: "Write the input image with the overlay drawn on top (png)", Default: ""})
	nnDump := parser.String("", "nninput", &argparse.Options{Help: "Write the model input image (jpeg)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	check(err)
	policy, err := cfg.Policy()
	check(err)
	detectOpts, err := cfg.DetectOptions()
	check(err)

	src, err := imaging.Open(*input)
	check(err)
	frame := geometry.NewFrame(imaging.Clone(src), 1, time.Now())
	plan, err := geometry.NewPlan(frame.Width, frame.Height, policy)
	check(err)
	logger.Infof("%v", plan)
	nnImg, err := plan.Apply(frame)
	check(err)
	if *nnDump != "" {
		b, err := engine.EncodeJPEG(nnImg, 95)
		check(err)
		check(os.WriteFile(*nnDump, b, 0644))
	}

	adapter, err := detect.NewAdapter(logger, engine.Loader(logger, cfg.CacheDir), cfg.ModelSetup(), detectOpts)
	check(err)
	defer adapter.Close()

	res, err := adapter.Detect(nnImg, plan)
	check(err)

	target := score.TargetScore(res.Detections, score.DefaultNegativeLabel, score.DefaultMultiplier)
	out := predictionJSON{
		Plan:        plan.String(),
		ImageWidth:  res.ImageWidth,
		ImageHeight: res.ImageHeight,
		Detections:  res.Detections,
		TargetScore: target,
		Stats:       res.Stats,
	}
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(&out))

	if *overlayFile != "" {
		renderer := overlay.NewRenderer(overlay.DefaultStyle())
		scale := max(float64(frame.Width)/float64(res.ImageWidth), float64(frame.Height)/float64(res.ImageHeight))
		scene := &overlay.Scene{
			Width:           frame.Width,
			Height:          frame.Height,
			Boxes:           renderer.Boxes(res.Detections, scale, true),
			IndicatorWidth:  frame.Width,
			IndicatorHeight: renderer.IndicatorHeight(),
			Indicator:       renderer.Indicator(frame.Width, target, target, max(score.InitialMaxScore, target)),
			Score:           target,
			Target:          target,
		}
		check(imaging.Save(overlay.Composite(src, scene), *overlayFile))
	}
	logger.Infof("%v objects, target score %.2f, inference %v", len(res.Detections), target, res.Stats.Inference)
}

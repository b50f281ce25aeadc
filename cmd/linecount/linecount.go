package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/imageseq"
	"github.com/cyclopcam/linecount/pkg/iox"
	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/linecount/pkg/nnremote"
	"github.com/cyclopcam/linecount/pkg/replay"
	"github.com/cyclopcam/linecount/server"
	"github.com/cyclopcam/linecount/server/config"
	"github.com/cyclopcam/linecount/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	parser := argparse.NewParser("linecount", "Count vehicles that cross a line")

	serveCmd := parser.NewCommand("serve", "Run the HTTP server")
	configFile := serveCmd.String("c", "config", &argparse.Options{Help: "JSON configuration file (default linecount.json, if it exists)", Default: ""})

	countCmd := parser.NewCommand("count", "Count the vehicles in a recording, and print the report")
	input := countCmd.String("i", "input", &argparse.Options{Help: "Recording of detections (JSON), or a zip archive of JPEG frames", Required: true})
	detectorURL := countCmd.String("", "detector", &argparse.Options{Help: "URL of the detection server, for a zip archive of frames", Default: ""})
	fps := countCmd.Float("", "fps", &argparse.Options{Help: "Frame rate of a zip archive of frames", Default: float64(imageseq.DefaultFPS)})
	lineStr := countCmd.String("", "line", &argparse.Options{Help: "Counting line as x1,y1,x2,y2", Default: "337,391,917,387"})
	iou := countCmd.Float("", "iou", &argparse.Options{Help: "Minimum IoU for a track to inherit a detection's class", Default: counting.DefaultIOUThreshold})
	minConfidence := countCmd.Float("", "confidence", &argparse.Options{Help: "Minimum confidence of a detection", Default: 0.3})
	output := countCmd.String("o", "output", &argparse.Options{Help: "Also write the report to this file. Use 'auto' for vehicle_statistics_<time>.txt", Default: ""})
	verbose := countCmd.Flag("v", "verbose", &argparse.Options{Help: "Log every crossing", Default: false})

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

	if serveCmd.Happened() {
		err = serve(logger, *configFile)
	} else if countCmd.Happened() {
		err = count(logger, *input, *detectorURL, *fps, *lineStr, float32(*iou), float32(*minConfidence), *output, *verbose)
	}
	if err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
}

func serve(logger logs.Log, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		return err
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(cfg.HTTPAddr)
	if !errors.Is(err, http.ErrServerClosed) {
		// We failed to listen, so nobody will call Shutdown
		srv.Shutdown()
		<-srv.ShutdownComplete
		return err
	}
	return <-srv.ShutdownComplete
}

// Run a recording through the pipeline as fast as possible
func count(logger logs.Log, input, detectorURL string, fps float64, lineStr string, iou, minConfidence float32, output string, verbose bool) error {
	line, err := counting.ParseLine(lineStr)
	if err != nil {
		return err
	}

	var source monitor.FrameSource
	var detector nn.ObjectDetector
	if imageseq.IsArchive(input) {
		if detectorURL == "" {
			return fmt.Errorf("--detector is required to count the frames in %v", input)
		}
		raw, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		seq, err := imageseq.Decode(raw, fps)
		if err != nil {
			return fmt.Errorf("Error loading %v: %w", input, err)
		}
		remote, err := nnremote.New(detectorURL, 10*time.Second)
		if err != nil {
			return err
		}
		logger.Infof("Detecting objects in %v frames with %v at %v", seq.NumFrames(), remote.Config().Architecture, detectorURL)
		source = seq
		detector = remote
	} else {
		rec, err := replay.Open(input)
		if err != nil {
			return err
		}
		if rec.NumDropped() != 0 {
			logger.Warnf("Ignoring %v malformed objects in %v", rec.NumDropped(), input)
		}
		source = rec
	}

	settings := monitor.DefaultSettings()
	settings.MaxSessions = 1
	settings.MinConfidence = minConfidence
	settings.Counting.IOUThreshold = iou
	settings.Counting.Verbose = verbose
	mon := monitor.NewMonitor(logger, settings, detector, prometheus.NewRegistry())
	defer mon.Close()

	sess, err := mon.StartSession(source, monitor.SessionOptions{Name: input, Line: &line})
	if err != nil {
		return err
	}
	<-sess.Done()

	counts := sess.Counts()
	fmt.Print(counts.Report())

	if output == "auto" {
		output = counting.ReportFilename(sess.Info().StartedAt.Local())
	}
	if output != "" {
		if err := iox.WriteStreamToFile(output, strings.NewReader(counts.Report())); err != nil {
			return err
		}
		logger.Infof("Report saved to %v", output)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"zsearch/internal/models"
	"zsearch/pkg/config"
	"zsearch/pkg/cube"
	"zsearch/pkg/linefinder"
	"zsearch/pkg/photometry"
	"zsearch/pkg/runner"
	"zsearch/pkg/sampler"
	"zsearch/pkg/search"
)

func main() {
	// Parse command line arguments
	headerPath := flag.String("header", "", "Cube header YAML file")
	dataPath := flag.String("data", "", "Cube payload file (little-endian float64)")
	configPath := flag.String("config", "zsearch.yaml", "Run configuration YAML file")
	flag.Parse()

	// Validate inputs
	if *headerPath == "" || *dataPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("ZSEARCH: REDSHIFT GRID SEARCH OVER A SPECTRAL-LINE CUBE")
	fmt.Println("================================")

	// Load the cube once; it is shared read-only by all workers.
	spectralCube, err := cube.Load(*headerPath, *dataPath)
	if err != nil {
		log.Fatalf("Failed to load cube: %v", err)
	}
	hdr := spectralCube.Header
	fmt.Printf("Loaded cube with %d channels of %dx%d pixels\n", hdr.Channels, hdr.Width, hdr.Height)

	// Resolve the target position to a pixel.
	ra := cube.RA{Hours: cfg.Target.RA[0], Minutes: cfg.Target.RA[1], Seconds: cfg.Target.RA[2]}
	dec := cube.Dec{
		Deg:     cfg.Target.Dec[0],
		Minutes: cfg.Target.Dec[1],
		Seconds: cfg.Target.Dec[2],
		Sign:    cfg.Target.DecSign,
	}
	centreX, centreY, err := spectralCube.SkyToPix(ra, dec)
	if err != nil {
		log.Fatalf("Failed to resolve target position: %v", err)
	}
	fmt.Printf("Target pixel: (%d, %d)\n", centreX, centreY)

	// Build the frequency axis in engineering units.
	freqAxis, symbol := spectralCube.FreqAxis()
	fmt.Printf("Frequency axis: %.4f to %.4f %sHz over %d channels\n",
		freqAxis[0], freqAxis[len(freqAxis)-1], symbol, len(freqAxis))

	grid := search.Grid{Start: cfg.Search.ZStart, Step: cfg.Search.ZStep, End: cfg.Search.ZEnd}
	engine, err := search.NewEngine(freqAxis, grid, cfg.Search.Transition)
	if err != nil {
		log.Fatalf("Failed to set up grid search: %v", err)
	}

	seed := cfg.Sampling.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	params := runner.Params{
		Points:        cfg.Sampling.Points,
		Centre:        models.SamplePoint{X: float64(centreX), Y: float64(centreY)},
		CircleRadius:  float64(spectralCube.CircleRadius()),
		MinSeparation: cfg.Sampling.MinSeparation,
		Workers:       cfg.Processing.Workers,
	}

	run := runner.New(
		photometry.NewExtractor(spectralCube, cfg.Photometry.ApertureRadius, cfg.Photometry.BValue),
		linefinder.NewFinder(),
		engine,
		sampler.New(rand.NewSource(seed)),
		params,
	)

	fmt.Printf("Scanning redshifts %.2f to %.2f (step %.3g) at %d sample points...\n",
		cfg.Search.ZStart, cfg.Search.ZEnd, cfg.Search.ZStep, cfg.Sampling.Points)

	result, err := run.Run(context.Background())
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	fmt.Println("\nPer-point results:")
	fmt.Println("==================")
	for i, pr := range result.Results {
		if pr.Err != nil {
			fmt.Printf("point %d at (%.2f, %.2f): FAILED: %v\n", i, pr.Point.X, pr.Point.Y, pr.Err)
			continue
		}
		fmt.Printf("point %d at (%.2f, %.2f): z=%.3f chi2=%.2f peaks=%d [%s]\n",
			i, pr.Point.X, pr.Point.Y, pr.BestRedshift, pr.BestChi2, pr.Peaks.Len(), pr.Category)
	}

	origin := result.Results[0]
	fmt.Printf("\nMost probable redshift of the target: z = %.3f\n", origin.BestRedshift)
	fmt.Printf("Total processing time: %.2f seconds\n", result.Elapsed.Seconds())
}

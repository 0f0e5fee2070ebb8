package cmd

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/cutter"
	"github.com/MeKo-Tech/geoconnector/internal/driver"
	"github.com/MeKo-Tech/geoconnector/internal/labelmaker"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/MeKo-Tech/geoconnector/internal/worker"
	"github.com/spf13/cobra"
)

var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Run a derivation driver that cuts rasters from one connector into another",
}

var cutGridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Tile every source raster on a fixed row/column grid",
	RunE:  runCutGrid,
}

var cutAroundCmd = &cobra.Command{
	Use:   "around",
	Short: "Cut windows around each vector's footprint",
	RunE:  runCutAround,
}

var cutBBoxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Cut one fixed bounding box out of every source raster",
	RunE:  runCutBBox,
}

func init() {
	rootCmd.AddCommand(cutCmd)
	cutCmd.AddCommand(cutGridCmd)
	cutCmd.AddCommand(cutAroundCmd)
	cutCmd.AddCommand(cutBBoxCmd)

	for _, c := range []*cobra.Command{cutGridCmd, cutAroundCmd, cutBBoxCmd} {
		c.Flags().String("source-dir", "", "Source connector data directory (required)")
		c.Flags().String("target-dir", "", "Target connector data directory (required)")
		c.Flags().Int("workers", 1, "Number of parallel cut workers")
		c.Flags().String("label-type", "", "Label maker to run after cutting (categorical, soft-categorical, or empty for none)")
		c.Flags().Bool("progress", true, "Print progress while cutting")
	}

	cutGridCmd.Flags().IntSlice("new-raster-size", []int{512, 512}, "Tile size in pixels: rows,cols (grid count is derived from the source raster size)")

	cutAroundCmd.Flags().String("mode", "random", "Window placement mode: random, centered, or variable")
	cutAroundCmd.Flags().IntSlice("new-raster-size", []int{256, 256}, "New raster size in pixels: rows,cols")
	cutAroundCmd.Flags().IntSlice("min-new-raster-size", []int{0, 0}, "Minimum raster size in pixels for variable mode: rows,cols")
	cutAroundCmd.Flags().Float64("scaling-factor", 1.0, "Extra margin multiplier applied around the vector's footprint")
	cutAroundCmd.Flags().Int64("seed", 1, "Random seed for the random placement mode")
	cutAroundCmd.Flags().Int("target-raster-count", 1, "Desired raster_count per vector before it is skipped")

	cutBBoxCmd.Flags().Float64("min-x", 0, "Bounding box min X")
	cutBBoxCmd.Flags().Float64("min-y", 0, "Bounding box min Y")
	cutBBoxCmd.Flags().Float64("max-x", 0, "Bounding box max X")
	cutBBoxCmd.Flags().Float64("max-y", 0, "Bounding box max Y")
	cutBBoxCmd.Flags().String("name", "cut.tif", "Name of the single emitted raster per source raster")
}

func buildLabelMaker(labelType string) (connector.LabelMaker, error) {
	switch labelType {
	case "":
		return nil, nil
	case "categorical":
		return labelmaker.Categorical{IO: rasterio.GDAL{}}, nil
	case "soft-categorical":
		return labelmaker.NewSoftCategorical(rasterio.GDAL{}), nil
	default:
		return nil, fmt.Errorf("unknown --label-type %q: want categorical, soft-categorical, or empty", labelType)
	}
}

// progressTracker returns a *worker.Progress printing a live bar to stderr
// while show is true, or nil when progress reporting is disabled.
func progressTracker(show bool) *worker.Progress {
	if !show {
		return nil
	}
	return worker.NewProgress(0, true)
}

// finishProgress prints the final bar and logs a one-line summary once a
// driver run completes. No-op when p is nil (progress reporting disabled).
func finishProgress(p *worker.Progress) {
	if p == nil {
		return
	}
	p.Done()
	logger.Info("cut finished", "summary", p.Summary())
}

func runCutGrid(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	sourceDir, targetDir, err := requireSourceTarget(cmd)
	if err != nil {
		return err
	}

	newSize, _ := cmd.Flags().GetIntSlice("new-raster-size")
	workers, _ := cmd.Flags().GetInt("workers")
	showProgress, _ := cmd.Flags().GetBool("progress")
	labelType, _ := cmd.Flags().GetString("label-type")

	if len(newSize) != 2 {
		return fmt.Errorf("--new-raster-size takes exactly 2 values")
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}

	progress := progressTracker(showProgress)
	var onProgress worker.ProgressFunc
	if progress != nil {
		onProgress = progress.Callback()
	}

	d := &driver.RasterDriver{
		Name:       "grid",
		Cutter:     &cutter.GridCutter{NewRasterSize: [2]int{newSize[0], newSize[1]}, IO: rasterio.GDAL{}},
		Filter:     driver.RastersNotPreviouslyCutOnly(),
		LabelMaker: lm,
		IO:         rasterio.GDAL{},
		Workers:    workers,
		OnProgress: onProgress,
	}

	rl := runLogger()
	rl.Info("Running grid cut", "source", sourceDir, "target", targetDir, "new_raster_size", newSize)
	err = d.Run(context.Background(), sourceDir, targetDir, rl)
	finishProgress(progress)
	return err
}

func runCutAround(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	sourceDir, targetDir, err := requireSourceTarget(cmd)
	if err != nil {
		return err
	}

	modeStr, _ := cmd.Flags().GetString("mode")
	newSize, _ := cmd.Flags().GetIntSlice("new-raster-size")
	minSize, _ := cmd.Flags().GetIntSlice("min-new-raster-size")
	scaling, _ := cmd.Flags().GetFloat64("scaling-factor")
	seed, _ := cmd.Flags().GetInt64("seed")
	targetCount, _ := cmd.Flags().GetInt("target-raster-count")
	workers, _ := cmd.Flags().GetInt("workers")
	showProgress, _ := cmd.Flags().GetBool("progress")
	labelType, _ := cmd.Flags().GetString("label-type")

	if len(newSize) != 2 || len(minSize) != 2 {
		return fmt.Errorf("--new-raster-size and --min-new-raster-size each take exactly 2 values")
	}

	var mode cutter.Mode
	switch modeStr {
	case "random":
		mode = cutter.ModeRandom
	case "centered":
		mode = cutter.ModeCentered
	case "variable":
		mode = cutter.ModeVariable
	default:
		return fmt.Errorf("unknown --mode %q: want random, centered, or variable", modeStr)
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}

	progress := progressTracker(showProgress)
	var onProgress worker.ProgressFunc
	if progress != nil {
		onProgress = progress.Callback()
	}

	d := &driver.VectorDriver{
		Name: "around-vector",
		Cutter: &cutter.AroundVectorCutter{
			Mode:             mode,
			NewRasterSize:    [2]int{newSize[0], newSize[1]},
			MinNewRasterSize: [2]int{minSize[0], minSize[1]},
			ScalingFactor:    scaling,
			RandomSeed:       seed,
			IO:               rasterio.GDAL{},
		},
		Filter:     driver.IsVectorMissingRasters(targetCount),
		Selector:   driver.RandomRasterSelector(targetCount),
		LabelMaker: lm,
		IO:         rasterio.GDAL{},
		Workers:    workers,
		RandomSeed: seed,
		OnProgress: onProgress,
	}

	rl := runLogger()
	rl.Info("Running around-vector cut", "source", sourceDir, "target", targetDir, "mode", modeStr, "target_raster_count", targetCount)
	err = d.Run(context.Background(), sourceDir, targetDir, rl)
	finishProgress(progress)
	return err
}

func runCutBBox(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	sourceDir, targetDir, err := requireSourceTarget(cmd)
	if err != nil {
		return err
	}

	minX, _ := cmd.Flags().GetFloat64("min-x")
	minY, _ := cmd.Flags().GetFloat64("min-y")
	maxX, _ := cmd.Flags().GetFloat64("max-x")
	maxY, _ := cmd.Flags().GetFloat64("max-y")
	name, _ := cmd.Flags().GetString("name")
	workers, _ := cmd.Flags().GetInt("workers")
	showProgress, _ := cmd.Flags().GetBool("progress")
	labelType, _ := cmd.Flags().GetString("label-type")

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}

	progress := progressTracker(showProgress)
	var onProgress worker.ProgressFunc
	if progress != nil {
		onProgress = progress.Callback()
	}

	d := &driver.RasterDriver{
		Name:       "bbox",
		Cutter:     cutter.BBoxCutter{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, Name: name, IO: rasterio.GDAL{}},
		Filter:     driver.RastersNotPreviouslyCutOnly(),
		LabelMaker: lm,
		IO:         rasterio.GDAL{},
		Workers:    workers,
		OnProgress: onProgress,
	}

	rl := runLogger()
	rl.Info("Running bbox cut", "source", sourceDir, "target", targetDir, "bbox", []float64{minX, minY, maxX, maxY})
	err = d.Run(context.Background(), sourceDir, targetDir, rl)
	finishProgress(progress)
	return err
}

func requireSourceTarget(cmd *cobra.Command) (string, string, error) {
	sourceDir, _ := cmd.Flags().GetString("source-dir")
	targetDir, _ := cmd.Flags().GetString("target-dir")
	if sourceDir == "" || targetDir == "" {
		return "", "", fmt.Errorf("--source-dir and --target-dir are both required")
	}
	return sourceDir, targetDir, nil
}

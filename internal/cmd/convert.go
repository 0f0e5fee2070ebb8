package cmd

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/converter"
	"github.com/MeKo-Tech/geoconnector/internal/labelmaker"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a connector's vectors between label representations",
}

var classCombineCmd = &cobra.Command{
	Use:   "class-combine",
	Short: "Combine or drop vector classes while copying rasters into a new connector",
	RunE:  runClassCombine,
}

var softToCategoricalCmd = &cobra.Command{
	Use:   "soft-to-categorical",
	Short: "Collapse a soft-categorical connector's probability columns to a single type column",
	RunE:  runSoftToCategorical,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.AddCommand(classCombineCmd)
	convertCmd.AddCommand(softToCategoricalCmd)

	classCombineCmd.Flags().String("source-dir", "", "Source connector data directory (required)")
	classCombineCmd.Flags().String("target-dir", "", "Target connector data directory (required)")
	classCombineCmd.Flags().StringSlice("classes", nil, "Classes to keep; use '+'-joined groups to merge, e.g. water,forest+grass")
	classCombineCmd.Flags().String("class-separator", "+", "Separator used both to parse merge groups and to derive new class names")
	classCombineCmd.Flags().String("new-background-class", "", "New background class name, must be among the groups in --classes")
	classCombineCmd.Flags().Bool("remove-rasters", false, "Drop rasters that no longer intersect any kept vector")
	classCombineCmd.Flags().String("label-type", "", "Label maker to regenerate labels with after combining (categorical, soft-categorical, or empty for none)")

	softToCategoricalCmd.Flags().String("source-dir", "", "Source connector data directory, label_type must be soft-categorical (required)")
	softToCategoricalCmd.Flags().String("target-dir", "", "Target connector data directory (required)")
	softToCategoricalCmd.Flags().String("label-type", "categorical", "Label maker to regenerate labels with after conversion")
}

func runClassCombine(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	sourceDir, _ := cmd.Flags().GetString("source-dir")
	targetDir, _ := cmd.Flags().GetString("target-dir")
	classesFlag, _ := cmd.Flags().GetStringSlice("classes")
	sep, _ := cmd.Flags().GetString("class-separator")
	newBackground, _ := cmd.Flags().GetString("new-background-class")
	removeRasters, _ := cmd.Flags().GetBool("remove-rasters")
	labelType, _ := cmd.Flags().GetString("label-type")

	if sourceDir == "" || targetDir == "" {
		return fmt.Errorf("--source-dir and --target-dir are both required")
	}
	if len(classesFlag) == 0 {
		return fmt.Errorf("--classes is required")
	}

	var groups []converter.ClassGroup
	for _, g := range classesFlag {
		groups = append(groups, converter.ClassGroup{Members: strings.Split(g, sep)})
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}

	source, err := connector.FromDataDir(sourceDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open source connector: %w", err)
	}
	target, err := connector.FromDataDir(targetDir, logger)
	if err != nil {
		target, err = connector.FromScratch(targetDir, source.CRSEPSG(), connector.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create target connector: %w", err)
		}
	}

	cfg := converter.Config{
		Classes:            groups,
		ClassSeparator:     sep,
		NewBackgroundClass: newBackground,
		RemoveRasters:      removeRasters,
		LabelMaker:         lm,
	}

	rl := runLogger()
	rl.Info("Running class-combine conversion", "source", sourceDir, "target", targetDir, "classes", classesFlag, "remove_rasters", removeRasters)
	if err := converter.ClassCombine(source, target, cfg); err != nil {
		return fmt.Errorf("class-combine failed: %w", err)
	}
	rl.Info("Class-combine complete", "target", targetDir)
	return nil
}

func runSoftToCategorical(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	sourceDir, _ := cmd.Flags().GetString("source-dir")
	targetDir, _ := cmd.Flags().GetString("target-dir")
	labelType, _ := cmd.Flags().GetString("label-type")

	if sourceDir == "" || targetDir == "" {
		return fmt.Errorf("--source-dir and --target-dir are both required")
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}

	source, err := connector.FromDataDir(sourceDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open source connector: %w", err)
	}
	target, err := connector.FromDataDir(targetDir, logger)
	if err != nil {
		target, err = connector.FromScratch(targetDir, source.CRSEPSG(), connector.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create target connector: %w", err)
		}
	}

	rl := runLogger()
	rl.Info("Running soft-to-categorical conversion", "source", sourceDir, "target", targetDir)
	if err := labelmaker.SoftToCategorical(source, target, lm); err != nil {
		return fmt.Errorf("soft-to-categorical failed: %w", err)
	}
	if err := target.Save(); err != nil {
		return fmt.Errorf("failed to save target connector: %w", err)
	}
	rl.Info("Soft-to-categorical complete", "target", targetDir)
	return nil
}

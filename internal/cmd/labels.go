package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Make or delete labels for every raster in a connector",
}

var labelsMakeCmd = &cobra.Command{
	Use:   "make",
	Short: "Rasterize the vectors table's classes onto every raster's label file",
	RunE:  runLabelsMake,
}

var labelsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every raster's label file",
	RunE:  runLabelsDelete,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.AddCommand(labelsMakeCmd)
	labelsCmd.AddCommand(labelsDeleteCmd)

	for _, c := range []*cobra.Command{labelsMakeCmd, labelsDeleteCmd} {
		c.Flags().String("data-dir", "", "Connector data directory (required)")
		c.Flags().String("label-type", "categorical", "Label maker to use: categorical or soft-categorical")
	}
}

func runLabelsMake(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	labelType, _ := cmd.Flags().GetString("label-type")
	if dataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}
	if lm == nil {
		return fmt.Errorf("--label-type is required")
	}

	c, err := connector.FromDataDir(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open connector: %w", err)
	}

	names := c.RastersTable().Keys()
	if err := lm.MakeLabels(c, names); err != nil {
		return fmt.Errorf("failed to make labels: %w", err)
	}
	c.SetLabelType(lm.LabelType())

	if err := c.Save(); err != nil {
		return fmt.Errorf("failed to save connector: %w", err)
	}
	logger.Info("Labels made", "data_dir", dataDir, "rasters", len(names), "label_type", lm.LabelType())
	return nil
}

func runLabelsDelete(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	labelType, _ := cmd.Flags().GetString("label-type")
	if dataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	lm, err := buildLabelMaker(labelType)
	if err != nil {
		return err
	}
	if lm == nil {
		return fmt.Errorf("--label-type is required")
	}

	c, err := connector.FromDataDir(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open connector: %w", err)
	}

	names := c.RastersTable().Keys()
	if err := lm.DeleteLabels(c, names); err != nil {
		return fmt.Errorf("failed to delete labels: %w", err)
	}
	logger.Info("Labels deleted", "data_dir", dataDir, "rasters", len(names))
	return nil
}

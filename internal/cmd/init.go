package cmd

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new, empty connector at a data directory",
	Long:  `Creates connector/attrs.json, connector/graph.json, and empty rasters/vectors tables rooted at --data-dir.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("data-dir", "", "Data directory to create the connector in (required)")
	initCmd.Flags().Int("crs", 4326, "CRS EPSG code for the new connector")
	initCmd.Flags().String("task-vector-classes", "", "Comma-separated list of task vector classes")
	initCmd.Flags().String("background-class", "", "Background class name (must not also appear in --task-vector-classes)")

	for _, bf := range []struct{ key, flag string }{
		{"init.data_dir", "data-dir"},
		{"init.crs", "crs"},
		{"init.task_vector_classes", "task-vector-classes"},
		{"init.background_class", "background-class"},
	} {
		if err := viper.BindPFlag(bf.key, initCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir := viper.GetString("init.data_dir")
	crs := viper.GetInt("init.crs")
	classesStr := viper.GetString("init.task_vector_classes")
	background := viper.GetString("init.background_class")

	if logger == nil {
		initLogging()
	}

	if dataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	var classes []string
	for _, c := range strings.Split(classesStr, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			classes = append(classes, c)
		}
	}

	opts := []connector.Option{connector.WithLogger(logger)}
	if len(classes) > 0 || background != "" {
		var bg *string
		if background != "" {
			bg = &background
		}
		opts = append(opts, connector.WithTaskVectorClasses(classes, bg))
	}

	c, err := connector.FromScratch(dataDir, crs, opts...)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}
	if err := c.Save(); err != nil {
		return fmt.Errorf("failed to save connector: %w", err)
	}

	logger.Info("Connector created", "data_dir", dataDir, "crs", crs, "task_vector_classes", classes)
	return nil
}

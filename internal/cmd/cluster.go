package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Partition a connector's rasters into spatially disjoint clusters",
	Long:  `Prints one line per cluster with its index, its size and its raster names, largest cluster first. Useful for building a spatially disjoint cross-validation split.`,
	RunE:  runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().String("data-dir", "", "Connector data directory (required)")
	clusterCmd.Flags().Int("min-cluster-size", 1, "Clusters smaller than this are merged into the largest cluster")
}

func runCluster(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	minSize, _ := cmd.Flags().GetInt("min-cluster-size")
	if dataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	c, err := connector.FromDataDir(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open connector: %w", err)
	}

	clusters, err := c.ClusterRasters(minSize)
	if err != nil {
		return fmt.Errorf("failed to cluster rasters: %w", err)
	}

	for i, cluster := range clusters {
		fmt.Printf("cluster %d (%d rasters): %v\n", i, len(cluster), cluster)
	}
	return nil
}

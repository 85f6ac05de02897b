package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/taosdata/incbitmap/internal/plugin"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print bitmap engine, event interceptor and backup coordinator counters",
	Long:  ``,
	Args:  cobra.NoArgs,
	Run:   runStats,
}

func init() {
	statsCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory containing extracted block payload files")
}

func runStats(cmd *cobra.Command, args []string) {
	teardown, err := bootstrap()
	if err != nil {
		log.Fatal(err)
	}
	defer teardown()

	engStats, err := plugin.EngineStats()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("engine:      total=%d dirty=%d new=%d deleted=%d\n",
		engStats.TotalBlocks, engStats.Dirty, engStats.New, engStats.Deleted)

	icStats, err := plugin.InterceptorStats()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("interceptor: processed=%d dropped=%d rejected=%d queue_depth=%d\n",
		icStats.EventsProcessed, icStats.EventsDropped, icStats.EventsRejected, icStats.QueueDepth)

	backupStats, err := plugin.GetStats()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("backup:      blocks=%d bytes=%d duration_ms=%d\n",
		backupStats.TotalBackupBlocks, backupStats.TotalBackupSize, backupStats.BackupDurationMS)

	errStats, err := plugin.GetErrorStats()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("errors:      count=%d retries=%d\n", errStats.ErrorCount, errStats.RetryCount)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taosdata/incbitmap/internal/archive"
	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/plugin"
)

var (
	backupOutput    string
	backupStartWAL  uint64
	backupEndWAL    uint64
	backupStartTime int64
	backupEndTime   int64
	backupCursor    string
	backupBatchSize int
	backupVgID      int
	backupFileSeq   uint32
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "backup operations",
	Long:  ``,
}

var backupRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "write an incremental backup archive for a WAL/time range",
	Long:  ``,
	Args:  cobra.NoArgs,
	Run:   runBackupRange,
}

func init() {
	backupCmd.AddCommand(backupRangeCmd)

	backupRangeCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory containing extracted block payload files")
	backupRangeCmd.Flags().StringVarP(&backupOutput, "output", "o", "backup.taosx", "output archive path")
	backupRangeCmd.Flags().Uint64Var(&backupStartWAL, "start-wal", 0, "start of the WAL offset range")
	backupRangeCmd.Flags().Uint64Var(&backupEndWAL, "end-wal", ^uint64(0), "end of the WAL offset range")
	backupRangeCmd.Flags().Int64Var(&backupStartTime, "start-time", 0, "start of the time range (unix ms)")
	backupRangeCmd.Flags().Int64Var(&backupEndTime, "end-time", 1<<62, "end of the time range (unix ms)")
	backupRangeCmd.Flags().StringVar(&backupCursor, "cursor", "wal", "cursor type: time|wal|hybrid")
	backupRangeCmd.Flags().IntVar(&backupBatchSize, "batch-size", 1000, "blocks per GetNextBatch call")
	backupRangeCmd.Flags().IntVar(&backupVgID, "vgroup-id", 0, "vgroup id stamped into the archive header")
	backupRangeCmd.Flags().Uint32Var(&backupFileSeq, "file-seq", 1, "archive file sequence number")
}

func parseCursorType(s string) (backup.CursorType, error) {
	switch s {
	case "time":
		return backup.CursorTime, nil
	case "wal":
		return backup.CursorWAL, nil
	case "hybrid":
		return backup.CursorHybrid, nil
	default:
		return 0, fmt.Errorf("unknown cursor type %q (want time|wal|hybrid)", s)
	}
}

func runBackupRange(cmd *cobra.Command, args []string) {
	teardown, err := bootstrap()
	if err != nil {
		log.Fatal(err)
	}
	defer teardown()

	cursorType, err := parseCursorType(backupCursor)
	if err != nil {
		log.Fatal(err)
	}

	cur, err := plugin.CreateIncrementalCursor(cursorType, backupStartTime, backupEndTime, backupStartWAL, backupEndWAL)
	if err != nil {
		log.Fatal(err)
	}
	defer plugin.DestroyCursor(cur)

	f, err := os.Create(backupOutput)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	header := archive.NewHeader("incbctl", "incbctl", backupOutput, 0, int8(backupVgID), backupFileSeq)
	compressionLevel := 0
	if cfg.Coordinator.EnableCompression {
		compressionLevel = int(cfg.Coordinator.CompressionLevel)
	}
	w, err := archive.NewWriter(f, header, compressionLevel)
	if err != nil {
		log.Fatal(err)
	}

	md, err := plugin.GenerateMetadata(backupStartWAL, backupEndWAL)
	if err != nil {
		log.Fatal(err)
	}
	if err := w.WriteMetadata(0, []byte(fmt.Sprintf("block_count=%d start_wal=%d end_wal=%d", md.BlockCount, md.StartWAL, md.EndWAL))); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	total := 0
	for cur.HasMore() {
		batch, err := plugin.GetNextBatch(ctx, cur, backupBatchSize)
		if err != nil {
			log.Fatal(err)
		}
		if len(batch) == 0 {
			break
		}
		for _, b := range batch {
			if err := w.WriteData(uint16(b.State), b.Data); err != nil {
				log.Fatal(err)
			}
		}
		total += len(batch)
	}

	if err := w.Close(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %d blocks to %s\n", total, backupOutput)
}

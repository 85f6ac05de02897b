package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taosdata/incbitmap/internal/plugin"
)

var replayEventsFile string

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "replay a CSV file of block events against the bitmap engine",
	Long: `Each line of the input file is "kind,block_id,wal_offset,timestamp" where
kind is one of create|update|flush|delete. Useful for exercising the engine
and interceptor without a live storage engine attached.`,
	Args: cobra.NoArgs,
	Run:  runReplayEvents,
}

func init() {
	replayEventsCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory containing extracted block payload files")
	replayEventsCmd.Flags().StringVarP(&replayEventsFile, "file", "f", "", "path to the CSV event file (required)")
	_ = replayEventsCmd.MarkFlagRequired("file")
}

func runReplayEvents(cmd *cobra.Command, args []string) {
	teardown, err := bootstrap()
	if err != nil {
		log.Fatal(err)
	}
	defer teardown()

	f, err := os.Open(replayEventsFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	p := plugin.Instance()
	scanner := bufio.NewScanner(f)
	lineNo, submitted := 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			log.Fatalf("replay-events: line %d: want 4 fields, got %d", lineNo, len(fields))
		}
		blockID, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			log.Fatalf("replay-events: line %d: bad block_id: %v", lineNo, err)
		}
		walOffset, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			log.Fatalf("replay-events: line %d: bad wal_offset: %v", lineNo, err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if err != nil {
			log.Fatalf("replay-events: line %d: bad timestamp: %v", lineNo, err)
		}

		switch strings.TrimSpace(fields[0]) {
		case "create":
			err = p.Interceptor.OnBlockCreate(blockID, walOffset, ts)
		case "update":
			err = p.Interceptor.OnBlockUpdate(blockID, walOffset, ts)
		case "flush":
			err = p.Interceptor.OnBlockFlush(blockID, walOffset, ts)
		case "delete":
			err = p.Interceptor.OnBlockDelete(blockID, walOffset, ts)
		default:
			log.Fatalf("replay-events: line %d: unknown event kind %q", lineNo, fields[0])
		}
		if err != nil {
			log.Fatalf("replay-events: line %d: %v", lineNo, err)
		}
		submitted++
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("submitted %d events from %s\n", submitted, replayEventsFile)
}

package config

import (
	"flag"
	"os"
	"time"

	"github.com/vendora/mediasync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   path to the local queue database (default from Config)
//	-s string   media spool directory
//	-g string   catalog DSN
//	-w int      number of upload workers
//	-i int      queue poll interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with the -c/-config flags
// handled by the JSON stage.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-g", "-w", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local queue database")
	fs.StringVar(&cfg.SpoolDir, "s", cfg.SpoolDir, "media spool directory")
	fs.StringVar(&cfg.CatalogDSN, "g", cfg.CatalogDSN, "media catalog DSN")
	fs.IntVar(&cfg.UploadWorkers, "w", cfg.UploadWorkers, "number of upload workers")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "queue poll interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.PollInterval = time.Duration(*pollInterval) * time.Second
}

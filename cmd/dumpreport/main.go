package main

import (
	"log"

	"github.com/spf13/pflag"

	"github.com/PatchLens/go-dump-lens/lens"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	statsFile := pflag.String("stats", "dumpstats.json", "Session stats file written by dumplens")
	reportFile := pflag.String("report", "dumpreport.png", "File to output the session chart image (.png, .svg, .jpg)")
	pflag.Parse()

	snap, err := lens.LoadStatsSnapshot(*statsFile)
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	if err := lens.WriteStatsChart(*reportFile, snap); err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	log.Println("Report file wrote: " + *reportFile)
}

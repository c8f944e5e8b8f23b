package main

import (
	"os"
	_ "time/tzdata"

	"golang-redflag-service/cmd/redflag/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	os.Exit(cmd.Execute())
}

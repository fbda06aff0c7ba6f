package main

import (
	"github.com/storbox-io/storbox/cmd/storbox-server/run"
	"github.com/storbox-io/storbox/utils/log"
)

var gitCommitID = "dev"

func main() {
	printWelcome()
	run.Execute()
}

func printWelcome() {
	if gitCommitID == "" {
		gitCommitID = "dev"
	}
	log.Info("-------- Welcome to use Storbox Server --------")
	log.Infof("Git Commit ID : %s", gitCommitID)
	log.Info("-----------------------------------------------")
}

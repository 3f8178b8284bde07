package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

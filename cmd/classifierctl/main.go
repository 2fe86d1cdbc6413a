// Command classifierctl talks to a running classifier service over HTTP or NATS.
package main

import (
	"os"

	"github.com/aigoflow/classifier-service/cmd/classifierctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

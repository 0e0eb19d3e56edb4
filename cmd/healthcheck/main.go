package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/icecave/sniroute/cmd"
	"github.com/icecave/sniroute/health"
)

func main() {
	config := cmd.GetConfigFromEnvironment()

	checker := health.HTTPChecker{
		Address: ":" + config.ControlPort,
		Client: &http.Client{
			Timeout: config.CheckTimeout,
		},
	}

	status := checker.Check(context.Background())
	fmt.Println(status.Message)
	if !status.IsHealthy {
		os.Exit(1)
	}
}

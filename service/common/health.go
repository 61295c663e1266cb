package common

import (
	"fmt"
	"log"
	"net/http"

	"github.com/heptiolabs/healthcheck"
)

type HealthCheckArgs struct {
	HealthPort uint `arg:"--health-port,env:HEALTH_PORT" default:"8082"`
}

func StartHealthCheckServer(port uint) {
	health := healthcheck.NewHandler()

	// TODO(saffron): use health.AddReadinessCheck() to check readiness of
	// the downstream services (mysql, sagemaker) so the server is marked
	// ready only when they are reachable.

	go func() {
		err := http.ListenAndServe(fmt.Sprintf(":%d", port), health)
		if err != nil {
			log.Fatalf("health check server stopped unexpectedly: %v", err)
		}
	}()
}

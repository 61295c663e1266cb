package common

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
)

type PprofArgs struct {
	PprofPort uint `arg:"--pprof-port,env:PPROF_PORT" default:"6060"`
}

// Start a server for pprof endpoints.
// Ref: https://pkg.go.dev/net/http/pprof
func StartPprofServer(port uint) {
	go func() {
		log.Println(http.ListenAndServe(fmt.Sprintf(":%d", port), nil))
	}()
}

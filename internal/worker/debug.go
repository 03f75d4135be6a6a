package worker

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("HARVEST_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		log.Printf(format, args...)
	}
}

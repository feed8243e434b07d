package datasets

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nozzle/datasets/cluster"
)

func testClient(t *testing.T, workers int, memLimit int64) *cluster.Client {
	t.Helper()
	cfg := cluster.DefaultConfig()
	cfg.NumWorkers = workers
	cfg.MemoryLimit = memLimit
	cfg.Logger = quietLogger()
	c := cluster.New(cfg)
	t.Cleanup(c.Close)
	return c
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

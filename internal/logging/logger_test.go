package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func initTest(t *testing.T, o Options) string {
	t.Helper()
	ws := t.TempDir()
	if err := Initialize(ws, o); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		CloseAll()
		logsDir = ""
	})
	return ws
}

func TestDisabledDebugModeIsNoOp(t *testing.T) {
	ws := initTest(t, Options{DebugMode: false})

	Cluster("this should go nowhere")
	Ingest("neither should this")

	if _, err := os.Stat(filepath.Join(ws, ".intentminer", "logs")); !os.IsNotExist(err) {
		t.Fatal("logs directory should not exist when debug mode is off")
	}
}

func TestCategoryFilesAreWritten(t *testing.T) {
	ws := initTest(t, Options{DebugMode: true, Level: "debug"})

	Cluster("selected k=%d", 7)
	ClusterDebug("sweep detail")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(ws, ".intentminer", "logs", date+"_cluster.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cluster log not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "selected k=7") {
		t.Fatalf("info line missing: %s", content)
	}
	if !strings.Contains(content, "sweep detail") {
		t.Fatalf("debug line missing: %s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	ws := initTest(t, Options{DebugMode: true, Level: "warn"})

	logger := Get(CategoryPipeline)
	logger.Info("hidden info")
	logger.Warn("visible warning")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(ws, ".intentminer", "logs", date+"_pipeline.log"))
	if err != nil {
		t.Fatalf("pipeline log not written: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "hidden info") {
		t.Fatalf("info should be filtered at warn level: %s", content)
	}
	if !strings.Contains(content, "visible warning") {
		t.Fatalf("warning missing: %s", content)
	}
}

func TestCategoryDisabling(t *testing.T) {
	initTest(t, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"store": false},
	})

	if IsCategoryEnabled(CategoryStore) {
		t.Fatal("store category should be disabled")
	}
	if !IsCategoryEnabled(CategoryCluster) {
		t.Fatal("unlisted categories default to enabled")
	}
}

func TestTimerStops(t *testing.T) {
	initTest(t, Options{DebugMode: true, Level: "debug"})

	timer := StartTimer(CategoryEmbedding, "test op")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Fatalf("negative elapsed time: %v", elapsed)
	}
}

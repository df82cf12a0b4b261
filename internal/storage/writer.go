package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/spf13/afero"
)

// WriterService is the single owner of the history file. Every run record
// reaches it through one channel, so writes never interleave.
type WriterService struct {
	Fs       afero.Fs
	FilePath string
	Log      *slog.Logger
}

func (w *WriterService) Start(wg *sync.WaitGroup, input <-chan domain.RunRecord) {
	defer wg.Done()
	log := w.Log
	if log == nil {
		log = slog.Default()
	}

	if err := w.Fs.MkdirAll(filepath.Dir(w.FilePath), 0o755); err != nil {
		log.Error("Failed to create history directory", "path", w.FilePath, "error", err)
	}

	f, err := w.Fs.OpenFile(w.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error("Failed to open history file", "path", w.FilePath, "error", err)
		// Keep draining so producers never block.
		for range input {
		}
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	for rec := range input {
		// Write as NDJSON
		if err := enc.Encode(rec); err != nil {
			log.Error("Failed to write run record", "run_id", rec.ID, "error", err)
		}
	}
}

// Queue hands run records to a running WriterService. Records are dropped
// with a warning when the buffer is full.
type Queue chan domain.RunRecord

func (q Queue) Record(rec domain.RunRecord) {
	select {
	case q <- rec:
	default:
		slog.Warn("History queue full, dropping record", "run_id", rec.ID)
	}
}

package bot

import (
	"log/slog"
	"sync"
	"time"
)

// UploadedFile is a validated-enough upload waiting for conversion: the
// original file name plus the downloaded bytes.
type UploadedFile struct {
	Name string
	Data []byte
}

// Batch collects the files one user uploads within a single debounce window.
type Batch struct {
	UserID          int64
	ChatID          int64
	Lang            string
	Files           []UploadedFile
	StatusMessageID int
	CreatedAt       time.Time
}

// AddResult reports what happened to a file handed to the Batcher.
type AddResult struct {
	// Count is the number of files in the batch after the add.
	Count int
	// Created is true when this file opened a new batch.
	Created bool
	// Full is true when the batch was already at capacity and the file
	// was dropped.
	Full bool
	// Stopped is true when the batcher is shutting down and the file
	// was dropped.
	Stopped bool
	// StatusMessageID is the batch's status message, 0 until set.
	StatusMessageID int
}

type batchEntry struct {
	batch *Batch
	timer *time.Timer
}

// Batcher groups uploads per user with a fixed debounce window. The window
// starts when the first file of a batch arrives and is never extended:
// files added later join the same batch but do not delay it. When the
// window elapses the batch is removed and handed to the ready callback,
// so a file arriving after that opens a fresh batch.
type Batcher struct {
	mu       sync.Mutex
	pending  map[int64]*batchEntry
	wait     time.Duration
	maxFiles int
	onReady  func(*Batch)
	logger   *slog.Logger
	wg       sync.WaitGroup
	stopped  bool
}

// NewBatcher creates a Batcher. onReady is called from the timer goroutine
// exactly once per batch.
func NewBatcher(logger *slog.Logger, wait time.Duration, maxFiles int, onReady func(*Batch)) *Batcher {
	return &Batcher{
		pending:  make(map[int64]*batchEntry),
		wait:     wait,
		maxFiles: maxFiles,
		onReady:  onReady,
		logger:   logger.With("component", "batcher"),
	}
}

// Add places a file into the user's pending batch, opening one if needed.
func (b *Batcher) Add(userID, chatID int64, lang string, file UploadedFile) AddResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return AddResult{Stopped: true}
	}

	entry, ok := b.pending[userID]
	if !ok {
		batch := &Batch{
			UserID:    userID,
			ChatID:    chatID,
			Lang:      lang,
			Files:     []UploadedFile{file},
			CreatedAt: time.Now(),
		}
		entry = &batchEntry{batch: batch}
		entry.timer = time.AfterFunc(b.wait, func() {
			b.finalize(userID)
		})
		b.pending[userID] = entry
		batchesOpenedTotal.Inc()
		b.logger.Debug("Opened batch", "user_id", userID, "file", file.Name)
		return AddResult{Count: 1, Created: true}
	}

	if len(entry.batch.Files) >= b.maxFiles {
		batchFilesDroppedTotal.Inc()
		b.logger.Warn("Batch full, dropping file",
			"user_id", userID,
			"file", file.Name,
			"max_files", b.maxFiles)
		return AddResult{Count: len(entry.batch.Files), Full: true, StatusMessageID: entry.batch.StatusMessageID}
	}

	entry.batch.Files = append(entry.batch.Files, file)
	b.logger.Debug("Added file to batch",
		"user_id", userID,
		"file", file.Name,
		"count", len(entry.batch.Files))
	return AddResult{Count: len(entry.batch.Files), StatusMessageID: entry.batch.StatusMessageID}
}

// SetStatusMessage records the Telegram message used for batch progress
// edits. It is a no-op when the batch has already been finalized.
func (b *Batcher) SetStatusMessage(userID int64, messageID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.pending[userID]; ok {
		entry.batch.StatusMessageID = messageID
	}
}

// finalize removes the user's batch and hands it to onReady. A file that
// arrives while onReady runs opens a new batch.
func (b *Batcher) finalize(userID int64) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	entry, ok := b.pending[userID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, userID)
	b.wg.Add(1)
	b.mu.Unlock()

	defer b.wg.Done()

	batchSizeFiles.Observe(float64(len(entry.batch.Files)))
	b.logger.Info("Batch ready",
		"user_id", userID,
		"files", len(entry.batch.Files),
		"age", time.Since(entry.batch.CreatedAt))
	b.onReady(entry.batch)
}

// Pending returns the number of users with an open batch.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop cancels all pending timers, drops unprocessed batches, and waits for
// in-flight onReady callbacks to return.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	for userID, entry := range b.pending {
		entry.timer.Stop()
		b.logger.Warn("Dropping pending batch on shutdown",
			"user_id", userID,
			"files", len(entry.batch.Files))
	}
	b.pending = make(map[int64]*batchEntry)
	b.mu.Unlock()

	b.wg.Wait()
}

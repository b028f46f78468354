package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/store"
)

// Downloader fetches pending attachments into the vault's media
// directory. Files land on disk before the index row flips to
// downloaded, so an indexed attachment always has its bytes.
type Downloader struct {
	db       *store.DB
	source   remote.Source
	bus      *bus.Bus
	logger   *zap.Logger
	mediaDir string
	cancel   context.CancelFunc
}

// NewDownloader creates a media downloader writing into mediaDir.
func NewDownloader(db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger, mediaDir string) *Downloader {
	return &Downloader{
		db:       db,
		source:   source,
		bus:      b,
		logger:   logger,
		mediaDir: mediaDir,
	}
}

// Start begins polling for attachments without a local copy.
func (d *Downloader) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.loop(ctx)
}

// Stop stops the downloader loop.
func (d *Downloader) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Downloader) loop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending downloads one batch of missing attachments.
func (d *Downloader) ProcessPending(ctx context.Context) {
	pending, err := d.db.PendingAttachments(20)
	if err != nil {
		d.logger.Error("failed to read pending attachments", zap.Error(err))
		return
	}

	for _, att := range pending {
		if err := d.download(ctx, att); err != nil {
			d.logger.Error("attachment download failed", zap.Error(err),
				zap.Int64("conversation_id", att.ConversationID),
				zap.Int64("msg_id", att.MsgID),
				zap.Int("index", att.Index))
			continue
		}
	}
}

func (d *Downloader) download(ctx context.Context, att store.Attachment) error {
	content, err := d.source.DownloadAttachment(ctx, remote.AttachmentLocator{
		ConversationID: att.ConversationID,
		MessageID:      att.MsgID,
		Index:          att.Index,
		RemoteID:       att.RemoteID,
	})
	if err != nil {
		return err
	}

	path := d.localPath(att)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return err
	}

	ok, err := d.db.MarkAttachmentDownloaded(att.ConversationID, att.MsgID, att.Index, path, content)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("attachment row vanished during download")
	}

	d.logger.Info("attachment downloaded",
		zap.Int64("msg_id", att.MsgID),
		zap.Int("index", att.Index),
		zap.Int("bytes", len(content)))
	d.bus.Publish(bus.Event{
		Kind:      bus.KindMediaDownloaded,
		Timestamp: time.Now(),
		Payload: map[string]int64{
			"conversation_id": att.ConversationID,
			"msg_id":          att.MsgID,
		},
	})
	return nil
}

// localPath keys files by conversation, message and index so two
// attachments never collide whatever their remote ids look like.
func (d *Downloader) localPath(att store.Attachment) string {
	name := fmt.Sprintf("%d_%d_%d", att.ConversationID, att.MsgID, att.Index)
	if ext := filepath.Ext(att.FileName); ext != "" {
		name += ext
	}
	return filepath.Join(d.mediaDir, name)
}

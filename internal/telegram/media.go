package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	MaxMediaSize = 5 * 1024 * 1024 // 5MB
)

// Media handles voice notes and file downloads
type Media struct {
	bot          *Bot
	logger       zerolog.Logger
	maxSize      int64
	fileEndpoint string

	onVoice func(context.Context, VoiceContext) error
}

// MediaFile represents a downloaded media file
type MediaFile struct {
	FileID   string
	FilePath string
	FileSize int
	MimeType string
}

// VoiceContext is a received voice note
type VoiceContext struct {
	MessageContext
	Duration int
	Audio    *FileAudio
}

// NewMedia creates a new media handler
func NewMedia(bot *Bot) *Media {
	maxSize := int64(MaxMediaSize)
	if bot.config != nil && bot.config.MaxVoiceMB > 0 {
		maxSize = int64(bot.config.MaxVoiceMB) * 1024 * 1024
	}
	return &Media{
		bot:          bot,
		logger:       bot.logger.With().Str("module", "media").Logger(),
		maxSize:      maxSize,
		fileEndpoint: tgbotapi.FileEndpoint,
	}
}

// HandleVoice processes voice notes
func (m *Media) HandleVoice(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.Voice == nil {
		return nil
	}

	msg := update.Message
	vc := VoiceContext{
		MessageContext: newMessageContext(msg),
		Duration:       msg.Voice.Duration,
		Audio:          m.Audio(msg.Voice.FileID),
	}

	m.logger.Debug().
		Str("file_id", msg.Voice.FileID).
		Int("duration", msg.Voice.Duration).
		Int64("chat_id", vc.ChatID).
		Msg("Voice note received")

	if m.onVoice != nil {
		return m.onVoice(ctx, vc)
	}
	return nil
}

// SetOnVoice sets the voice note callback
func (m *Media) SetOnVoice(callback func(context.Context, VoiceContext) error) {
	m.onVoice = callback
}

// Audio returns a lazy handle on a Telegram file
func (m *Media) Audio(fileID string) *FileAudio {
	return &FileAudio{media: m, fileID: fileID}
}

// DownloadFile downloads a file from Telegram, refusing files over the size cap
func (m *Media) DownloadFile(ctx context.Context, fileID string, destPath string) (*MediaFile, error) {
	file, err := m.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if int64(file.FileSize) > m.maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum %d", file.FileSize, m.maxSize)
	}

	url := fmt.Sprintf(m.fileEndpoint, m.bot.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := m.bot.api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	// One byte past the cap tells us the size reported by getFile was wrong
	written, err := io.Copy(out, io.LimitReader(resp.Body, m.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if written > m.maxSize {
		return nil, fmt.Errorf("file exceeds maximum %d bytes", m.maxSize)
	}

	m.logger.Info().
		Str("file_id", fileID).
		Str("path", destPath).
		Int64("size", written).
		Msg("File downloaded")

	return &MediaFile{
		FileID:   fileID,
		FilePath: destPath,
		FileSize: int(written),
	}, nil
}

// FileAudio downloads a Telegram voice note on demand
type FileAudio struct {
	media  *Media
	fileID string
}

// FileID returns the Telegram file id
func (a *FileAudio) FileID() string {
	return a.fileID
}

// Download writes the voice note to destPath
func (a *FileAudio) Download(ctx context.Context, destPath string) error {
	_, err := a.media.DownloadFile(ctx, a.fileID, destPath)
	return err
}

package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Sabeehq11/CMI/internal/storage"
	"github.com/Sabeehq11/CMI/internal/utils"
)

// AudioArchiveService uploads each student utterance as sessions/<id>/turn-NNN.webm.
type AudioArchiveService interface {
	ArchiveUtterance(ctx context.Context, sessionID string, turn int, audio []byte) (string, error)
}

type audioArchiveService struct {
	uploader storage.Uploader
}

func NewAudioArchiveService(uploader storage.Uploader) AudioArchiveService {
	return &audioArchiveService{uploader: uploader}
}

func UtteranceObjectName(sessionID string, turn int) string {
	return fmt.Sprintf("sessions/%s/turn-%03d.webm", sessionID, turn)
}

func (s *audioArchiveService) ArchiveUtterance(ctx context.Context, sessionID string, turn int, audio []byte) (string, error) {
	const op = "AudioArchiveService.ArchiveUtterance"

	if sessionID == "" || turn <= 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "session_id is required and turn must be > 0", nil)
	}
	if len(audio) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "audio is empty", nil)
	}

	path, err := s.uploader.Upload(ctx, UtteranceObjectName(sessionID, turn), "audio/webm", bytes.NewReader(audio))
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload audio", err)
	}
	return path, nil
}

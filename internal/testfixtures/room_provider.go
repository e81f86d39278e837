package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// RoomProvider is a scriptable fake of the video room vendor.
type RoomProvider struct {
	mu sync.Mutex

	// CreateErr, when set, makes CreateRoom fail.
	CreateErr error
	// Recordings is what ListRecordings returns.
	Recordings []models.ExternalRecording
	// DownloadLinks maps recording id to its resolved URL.
	DownloadLinks map[string]string

	CreatedRooms   []string
	DeletedRooms   []string
	LinkFetches    int
	RecordingLists int
}

func NewRoomProvider() *RoomProvider {
	return &RoomProvider{DownloadLinks: make(map[string]string)}
}

func (p *RoomProvider) CreateRoom(_ context.Context, topic string) (*models.ProviderRoom, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.CreatedRooms = append(p.CreatedRooms, topic)
	return &models.ProviderRoom{
		RoomID:    "room-" + topic,
		RoomName:  topic,
		CreatedAt: time.Now(),
	}, nil
}

func (p *RoomProvider) DeleteRoom(_ context.Context, roomName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.DeletedRooms = append(p.DeletedRooms, roomName)
	return nil
}

func (p *RoomProvider) ListRecordings(_ context.Context, _ time.Time) ([]models.ExternalRecording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.RecordingLists++
	out := make([]models.ExternalRecording, len(p.Recordings))
	copy(out, p.Recordings)
	return out, nil
}

func (p *RoomProvider) GetDownloadLink(_ context.Context, recordingID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.LinkFetches++
	link, ok := p.DownloadLinks[recordingID]
	if !ok {
		return "", apperrors.NewProvider("get download link", 404, nil)
	}
	return link, nil
}

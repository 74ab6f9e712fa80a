package service

import (
	"strings"

	"messenger/internal/domain"
)

// BlobResolver превращает ссылку на файл в URL для клиента
type BlobResolver interface {
	URL(ref string) string
}

type prefixBlobResolver struct {
	base string
}

func NewBlobResolver(publicBaseURL string) BlobResolver {
	if publicBaseURL != "" && !strings.HasSuffix(publicBaseURL, "/") {
		publicBaseURL += "/"
	}
	return &prefixBlobResolver{base: publicBaseURL}
}

func (r *prefixBlobResolver) URL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	return r.base + ref
}

func userView(u *domain.User, blobs BlobResolver) domain.UserView {
	v := u.View()
	v.AvatarURL = blobs.URL(u.Avatar)
	return v
}

// messageView собирает денормализованное сообщение. sender может быть nil,
// если автор уже не резолвится.
func messageView(m *domain.Message, sender *domain.User, blobs BlobResolver) *domain.MessageView {
	v := &domain.MessageView{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Type:         m.Type,
		Text:         m.Text,
		Status:       m.Status,
		Read:         m.Read,
		AudioRef:     m.AudioRef,
		AudioURL:     blobs.URL(m.AudioRef),
		Duration:     m.Duration,
		FileRef:      m.FileRef,
		FileURL:      blobs.URL(m.FileRef),
		FileName:     m.FileName,
		FileCategory: m.FileCategory,
		MimeType:     m.MimeType,
		Size:         m.Size,
		CreatedAt:    m.CreatedAt,
	}
	if sender != nil {
		p := sender.Profile()
		v.Sender = &p
	} else {
		v.Sender = &domain.UserProfile{ID: m.SenderID}
	}
	return v
}

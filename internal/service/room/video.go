package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

// normalizeSource stores YouTube sources as bare video ids regardless of
// which URL form the client sent.
func normalizeSource(kind room.MediaKind, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if kind != room.MediaKindYouTube {
		return raw, nil
	}

	id, err := ytvideodata.ParseID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	return id, nil
}

func (s service) fetchTitle(ctx context.Context, kind room.MediaKind, source string) string {
	if s.videoData == nil || kind != room.MediaKindYouTube {
		return ""
	}

	data, err := s.videoData.Get(ctx, source)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to fetch video data", "video_id", source, "error", err)
		return ""
	}

	return data.Title
}

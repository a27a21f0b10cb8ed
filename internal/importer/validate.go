package importer

import (
	"fmt"
	"net/url"
	"strings"

	"go-feeds/internal/service"
)

var ErrInvalidURL = service.ErrInvalidURL

// ValidateURL 只允许 https,拒绝本地、内网和链路本地地址
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := service.CheckPublicURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

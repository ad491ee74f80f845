package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformTiktok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYoutube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedin  Platform = "linkedin"
	PlatformThreads   Platform = "threads"
	PlatformPinterest Platform = "pinterest"
)

var knownPlatforms = map[Platform]struct{}{
	PlatformTiktok: {}, PlatformInstagram: {}, PlatformYoutube: {}, PlatformFacebook: {},
	PlatformTwitter: {}, PlatformLinkedin: {}, PlatformThreads: {}, PlatformPinterest: {},
}

// ParsePlatform normalizes raw and checks it against the known platforms.
func ParsePlatform(raw string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return "", errors.New("platform is required")
	}
	if _, ok := knownPlatforms[p]; !ok {
		return "", fmt.Errorf("unsupported platform %q", raw)
	}
	return p, nil
}

type YoutubeOptions struct {
	Title         string `json:"title,omitempty"`
	PrivacyStatus string `json:"privacy_status,omitempty"`
	CategoryID    string `json:"category_id,omitempty"`
	MadeForKids   bool   `json:"made_for_kids,omitempty"`
}

type TiktokOptions struct {
	PrivacyLevel          string `json:"privacy_level,omitempty"`
	DisableDuet           bool   `json:"disable_duet,omitempty"`
	DisableComment        bool   `json:"disable_comment,omitempty"`
	DisableStitch         bool   `json:"disable_stitch,omitempty"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms,omitempty"`
	IsAIGC                bool   `json:"is_aigc,omitempty"`
}

type InstagramOptions struct {
	ShareToFeed bool   `json:"share_to_feed,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// PlatformMetadata carries per-platform publish options. At most one section
// may be set and it must match the item's platform.
type PlatformMetadata struct {
	Youtube   *YoutubeOptions   `json:"youtube,omitempty"`
	Tiktok    *TiktokOptions    `json:"tiktok,omitempty"`
	Instagram *InstagramOptions `json:"instagram,omitempty"`
}

func (m PlatformMetadata) Validate(p Platform) error {
	set := map[Platform]bool{
		PlatformYoutube:   m.Youtube != nil,
		PlatformTiktok:    m.Tiktok != nil,
		PlatformInstagram: m.Instagram != nil,
	}
	for name, present := range set {
		if present && name != p {
			return fmt.Errorf("%s options given for a %s item", name, p)
		}
	}
	return nil
}

func (m PlatformMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *PlatformMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = PlatformMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into PlatformMetadata", src)
	}
}

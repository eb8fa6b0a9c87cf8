// Package youtube 抓取 YouTube 视频的字幕轨。
package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"
)

var (
	// ErrInvalidURL 表示无法从 URL 中解析出视频 ID。
	ErrInvalidURL = errors.New("could not extract video id from url")
	// ErrTranscriptUnavailable 表示视频没有可用字幕或字幕被禁用。
	ErrTranscriptUnavailable = errors.New("transcript is disabled or unavailable for this video")
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:watch\?v=)([0-9A-Za-z_-]{11})`),
}

var bareIDRe = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// ExtractVideoID 支持 watch、shorts、embed、youtu.be 等形式的链接，也接受裸 ID。
// 非 YouTube 域名的链接一律拒绝。
func ExtractVideoID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if bareIDRe.MatchString(s) {
		return s, nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if v := u.Query().Get("v"); bareIDRe.MatchString(v) {
		return v, nil
	}
	rest := u.RequestURI()
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rest); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
}

func isYouTubeHost(host string) bool {
	host = strings.ToLower(host)
	switch host {
	case "youtube.com", "youtu.be", "youtube-nocookie.com":
		return true
	}
	return strings.HasSuffix(host, ".youtube.com") || strings.HasSuffix(host, ".youtube-nocookie.com")
}

// Segment 是一条带时间戳的字幕。
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript 是一个视频的完整字幕。
type Transcript struct {
	VideoID  string    `json:"video_id"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Text 返回以空格连接的全文。
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Fetcher 抓取视频字幕。
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (*Transcript, error)
}

// Client 通过观看页中的 captionTracks 获取字幕。
type Client struct {
	baseURL   string
	languages []string
	http      *http.Client
}

// NewClient 创建字幕客户端。
func NewClient(cfg config.YouTubeConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://www.youtube.com"
	}
	return &Client{baseURL: base, languages: cfg.Languages, http: &http.Client{Timeout: timeout}}
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch 获取字幕。视频没有字幕轨时返回 ErrTranscriptUnavailable。
func (c *Client) Fetch(ctx context.Context, videoID string) (*Transcript, error) {
	start := time.Now()
	t, err := c.fetch(ctx, videoID)
	metrics.ExternalRequestDuration.WithLabelValues("youtube").Observe(time.Since(start).Seconds())
	metrics.ExternalRequestsTotal.WithLabelValues("youtube", metrics.Status(err)).Inc()
	return t, err
}

func (c *Client) fetch(ctx context.Context, videoID string) (*Transcript, error) {
	page, err := c.get(ctx, c.baseURL+"/watch?v="+url.QueryEscape(videoID))
	if err != nil {
		return nil, fmt.Errorf("获取视频页面失败: %w", err)
	}
	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return nil, err
	}
	track := c.pickTrack(tracks)
	log.Infof("[YouTube] 选择字幕轨, VideoID: %s, Language: %s, Kind: %s", videoID, track.LanguageCode, track.Kind)

	trackURL := html.UnescapeString(track.BaseURL)
	if strings.HasPrefix(trackURL, "/") {
		trackURL = c.baseURL + trackURL
	}
	body, err := c.get(ctx, trackURL)
	if err != nil {
		return nil, fmt.Errorf("获取字幕失败: %w", err)
	}
	segments, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrTranscriptUnavailable
	}
	return &Transcript{VideoID: videoID, Language: track.LanguageCode, Segments: segments}, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; insight-qa/1.0)")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// pickTrack 按配置的语言优先级选择字幕轨，人工字幕优先于自动字幕。
func (c *Client) pickTrack(tracks []captionTrack) captionTrack {
	for _, lang := range c.languages {
		for _, manual := range []bool{true, false} {
			for _, t := range tracks {
				if strings.EqualFold(t.LanguageCode, lang) && (t.Kind != "asr") == manual {
					return t
				}
			}
		}
	}
	return tracks[0]
}

func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	s := string(page)
	i := strings.Index(s, marker)
	if i < 0 {
		return nil, ErrTranscriptUnavailable
	}
	rest := s[i+len(marker):]
	end := matchingBracket(rest)
	if end < 0 {
		return nil, ErrTranscriptUnavailable
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(rest[:end+1]), &tracks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}
	if len(tracks) == 0 {
		return nil, ErrTranscriptUnavailable
	}
	return tracks, nil
}

// matchingBracket 返回 s 开头的 JSON 数组的结束位置。
func matchingBracket(s string) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseTimedText(body []byte) ([]Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("解析字幕失败: %w", err)
	}
	segments := make([]Segment, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		text := strings.Join(strings.Fields(html.UnescapeString(t.Body)), " ")
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		segments = append(segments, Segment{Text: text, Start: start, Duration: dur})
	}
	return segments, nil
}

// Timestamp 把秒数格式化为 mm:ss 或 h:mm:ss。
func Timestamp(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/config"
	"harvesttutor/internal/redis"
)

const (
	// MaxChunkRunes is the longest text the translate endpoint accepts per request.
	MaxChunkRunes = 100

	defaultTimeout = 20 * time.Second
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var (
	ErrEmptyText  = errors.New("no text provided")
	ErrEmptyAudio = errors.New("speech endpoint returned no audio")
)

// Client turns text into mp3 speech using the Google Translate TTS endpoint.
type Client struct {
	http  *resty.Client
	cache *redis.Cache
}

func New(cfg config.VoiceConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Referer", "https://translate.google.com/"),
	}
}

// WithCache memoizes audio per text and language code.
func (c *Client) WithCache(cache *redis.Cache) *Client {
	c.cache = cache
	return c
}

// Synthesize returns mp3 audio for text spoken in langCode.
func (c *Client) Synthesize(ctx context.Context, text, langCode string) ([]byte, error) {
	chunks := Chunk(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	key := redis.Key("voice", langCode, text)
	return redis.Remember(ctx, c.cache, key, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, chunks, langCode)
	})
}

func (c *Client) fetch(ctx context.Context, chunks []string, langCode string) ([]byte, error) {
	var audio bytes.Buffer
	for i, chunk := range chunks {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"ie":      "UTF-8",
				"client":  "tw-ob",
				"tl":      langCode,
				"q":       chunk,
				"total":   strconv.Itoa(len(chunks)),
				"idx":     strconv.Itoa(i),
				"textlen": strconv.Itoa(utf8.RuneCountInString(chunk)),
			}).
			Get("/translate_tts")
		if err != nil {
			return nil, fmt.Errorf("speech request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("speech endpoint returned %d for chunk %d/%d", resp.StatusCode(), i+1, len(chunks))
		}
		audio.Write(resp.Body())
	}
	if audio.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	log.WithFields(log.Fields{"lang": langCode, "chunks": len(chunks)}).Debugf("synthesized %d bytes", audio.Len())
	return audio.Bytes(), nil
}

// Chunk splits text into pieces of at most limit runes, preferring sentence
// and then word boundaries. Markdown emphasis markers are dropped.
func Chunk(text string, limit int) []string {
	text = strings.Join(strings.Fields(strings.NewReplacer("*", "", "#", "", "_", " ").Replace(text)), " ")
	if text == "" || limit <= 0 {
		return nil
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}
		cut := splitPoint(text, limit)
		piece := strings.TrimSpace(text[:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}

// splitPoint returns a byte offset within the first limit runes of text.
func splitPoint(text string, limit int) int {
	end, n := 0, 0
	lastPunct, lastSpace := -1, -1
	for i, r := range text {
		if n == limit {
			break
		}
		n++
		end = i + utf8.RuneLen(r)
		switch {
		case strings.ContainsRune(".!?;:,।", r):
			lastPunct = end
		case unicode.IsSpace(r):
			lastSpace = i
		}
	}
	switch {
	case lastPunct > 0:
		return lastPunct
	case lastSpace > 0:
		return lastSpace
	default:
		return end
	}
}

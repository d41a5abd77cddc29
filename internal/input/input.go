package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/terrorizer1980/stream-loader/internal/loader"
)

// Lines longer than this are dropped by the scanner.
const maxLineBytes = 1024 * 1024

var ErrUnsupportedScheme = errors.New("unsupported input scheme")

// Reader turns an input location into a bounded channel of raw lines. The
// channel capacity is the queue maximum, so a slow engine backpressures the
// read side instead of buffering the whole input in memory.
type Reader struct {
	queueMax int
	counters *loader.Counters
	client   *resty.Client
}

func NewReader(queueMax int, counters *loader.Counters) *Reader {
	return &Reader{
		queueMax: queueMax,
		counters: counters,
		client: resty.New().
			SetRetryCount(3).
			SetRetryWaitTime(2 * time.Second).
			SetDoNotParseResponse(true),
	}
}

// Lines opens the input named by inputURL and streams its lines. An empty
// inputURL reads stdin; file:// and bare paths read a local file; http(s)://
// streams the response body. The channel closes when the input is exhausted
// or the context is cancelled.
func (r *Reader) Lines(ctx context.Context, inputURL string) (<-chan string, error) {
	source, err := r.open(inputURL)
	if err != nil {
		return nil, err
	}

	lines := make(chan string, r.queueMax)
	go func() {
		defer close(lines)
		defer func() {
			if err := source.Close(); err != nil {
				log.Error().Msgf("error closing input: %v", err)
			}
		}()

		scanner := bufio.NewScanner(source)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
				r.counters.IncrQueued()
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Msgf("error reading input: %v", err)
		}
	}()
	return lines, nil
}

func (r *Reader) open(inputURL string) (io.ReadCloser, error) {
	if inputURL == "" {
		return io.NopCloser(os.Stdin), nil
	}

	parsed, err := url.Parse(inputURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse input url %q: %w", inputURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return r.openHTTP(inputURL)
	case "file":
		path := parsed.Path
		if parsed.Host != "" {
			path = parsed.Host + parsed.Path
		}
		return os.Open(path)
	case "":
		return os.Open(inputURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}
}

func (r *Reader) openHTTP(inputURL string) (io.ReadCloser, error) {
	resp, err := r.client.R().Get(inputURL)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch %s: %w", inputURL, err)
	}
	if resp.StatusCode() >= 300 {
		body := resp.RawBody()
		if body != nil {
			_ = body.Close()
		}
		return nil, fmt.Errorf("cannot fetch %s: status %s", inputURL, resp.Status())
	}
	return resp.RawBody(), nil
}

// SchemeOf reports the scheme Lines would use for an input location, for
// logging at startup.
func SchemeOf(inputURL string) string {
	if inputURL == "" {
		return "stdin"
	}
	parsed, err := url.Parse(inputURL)
	if err != nil || parsed.Scheme == "" {
		return "file"
	}
	if strings.HasPrefix(parsed.Scheme, "http") {
		return "url"
	}
	return parsed.Scheme
}

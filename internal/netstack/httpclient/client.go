// Package httpclient is a minimal HTTP/1.1 client riding the polling TCP
// and DNS layers: plain-text GET with Connection: close, chunked transfer
// decoding, and bounded redirect following. TLS is out of reach without a
// crypto stack, so https URLs are refused outright.
package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/othello-os/go-othello/internal/netstack"
)

var (
	// ErrUnsupportedScheme rejects anything but plain http URLs.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrParse covers malformed URLs and responses we cannot decode.
	ErrParse = errors.New("malformed URL or response")

	// ErrRedirectLoop is returned after too many consecutive redirects.
	ErrRedirectLoop = errors.New("too many redirects")
)

const (
	userAgent      = "go-othello/0.1"
	defaultMaxBody = 2_000_000
	maxRedirects   = 5

	// headerHeadroom is extra read allowance on top of the body cap so a
	// maximal body with its headers still fits in one read.
	headerHeadroom = 65536
)

// Options bound a client's transfers.
type Options struct {
	MaxBodyBytes int
	ConnectSpins uint32
	ReadSpins    uint32
}

// DefaultOptions matches the budgets used on real hardware.
func DefaultOptions() *Options {
	return &Options{
		MaxBodyBytes: defaultMaxBody,
		ConnectSpins: 10_000_000,
		ReadSpins:    10_000_000,
	}
}

// Response is a decoded HTTP response.
type Response struct {
	Status      int
	ContentType string
	Location    string
	Body        []byte
}

// Client issues GET requests over a network stack.
type Client struct {
	stack *netstack.Stack
	opts  Options
}

// NewClient wraps stack. A nil opts selects DefaultOptions.
func NewClient(stack *netstack.Stack, opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Client{stack: stack, opts: *opts}
}

// Get fetches rawURL, following up to five redirects. Redirect targets may
// be absolute URLs, rooted paths, or relative to the current path.
func (c *Client) Get(rawURL string) (*Response, error) {
	parts, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	for redirects := 0; ; redirects++ {
		resp, err := c.fetch(parts)
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case 301, 302, 303, 307, 308:
		default:
			return resp, nil
		}
		if resp.Location == "" {
			return resp, nil
		}
		if redirects >= maxRedirects {
			return nil, ErrRedirectLoop
		}

		parts, err = parseURL(resolveLocation(parts, resp.Location))
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) fetch(u urlParts) (*Response, error) {
	ip, err := c.stack.ResolveA(u.host)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", u.host, err)
	}

	conn, err := c.stack.Connect(ip, u.port, c.opts.ConnectSpins)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", u.authority, err)
	}

	request := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nAccept: text/html, text/plain, */*\r\nConnection: close\r\n\r\n",
		u.path, u.host, userAgent)
	if err := conn.WriteAll([]byte(request)); err != nil {
		return nil, err
	}

	raw, err := conn.ReadToEnd(c.opts.MaxBodyBytes+headerHeadroom, c.opts.ReadSpins)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()

	return parseResponse(raw, c.opts.MaxBodyBytes)
}

type urlParts struct {
	scheme    string
	host      string
	port      uint16
	authority string // host or host:port as written
	path      string
}

func parseURL(raw string) (urlParts, error) {
	scheme := "http"
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = strings.ToLower(raw[:i])
		rest = raw[i+3:]
	}
	if scheme != "http" {
		return urlParts{}, ErrUnsupportedScheme
	}

	authority := rest
	path := "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		path = rest[i:]
	}

	host := authority
	port := uint16(80)
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		if n, err := strconv.ParseUint(authority[i+1:], 10, 16); err == nil {
			host = authority[:i]
			port = uint16(n)
		}
	}
	if host == "" {
		return urlParts{}, ErrParse
	}
	return urlParts{scheme: scheme, host: host, port: port, authority: authority, path: path}, nil
}

// resolveLocation turns a Location header into an absolute URL against the
// response's request URL.
func resolveLocation(u urlParts, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	if strings.HasPrefix(location, "/") {
		return "http://" + u.authority + location
	}
	base := u.path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[:i+1]
	}
	return "http://" + u.authority + base + location
}

func parseResponse(raw []byte, maxBody int) (*Response, error) {
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	bodyStart := headerEnd + 4
	if headerEnd < 0 {
		headerEnd = bytes.Index(raw, []byte("\n\n"))
		bodyStart = headerEnd + 2
	}
	if headerEnd < 0 {
		return nil, ErrParse
	}
	lines := strings.Split(string(raw[:headerEnd]), "\n")
	body := raw[bodyStart:]

	statusFields := strings.Fields(strings.TrimRight(lines[0], "\r"))
	if len(statusFields) < 2 {
		return nil, ErrParse
	}
	status, err := strconv.Atoi(statusFields[1])
	if err != nil {
		return nil, ErrParse
	}

	if strings.EqualFold(findHeader(lines, "Transfer-Encoding"), "chunked") {
		body, err = decodeChunked(body)
		if err != nil {
			return nil, err
		}
	} else if lengthText := findHeader(lines, "Content-Length"); lengthText != "" {
		if n, err := strconv.Atoi(lengthText); err == nil && n >= 0 && n <= len(body) {
			body = body[:n]
		}
	}
	if len(body) > maxBody {
		body = body[:maxBody]
	}

	return &Response{
		Status:      status,
		ContentType: findHeader(lines, "Content-Type"),
		Location:    findHeader(lines, "Location"),
		Body:        body,
	}, nil
}

// findHeader scans past the status line for a header, case-insensitively.
func findHeader(lines []string, name string) string {
	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(strings.TrimRight(value, "\r"))
		}
	}
	return ""
}

// decodeChunked reassembles a chunked transfer body. Size lines may carry
// chunk extensions after a semicolon; a zero-size chunk terminates.
func decodeChunked(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	i := 0
	for i < len(body) {
		j := i
		for j+1 < len(body) && !(body[j] == '\r' && body[j+1] == '\n') {
			j++
		}
		if j+1 >= len(body) {
			return nil, ErrParse
		}
		sizeText := string(body[i:j])
		if k := strings.IndexByte(sizeText, ';'); k >= 0 {
			sizeText = sizeText[:k]
		}
		size, err := strconv.ParseUint(strings.TrimSpace(sizeText), 16, 32)
		if err != nil {
			return nil, ErrParse
		}
		i = j + 2
		if size == 0 {
			break
		}
		end := i + int(size)
		if end > len(body) {
			return nil, ErrParse
		}
		out = append(out, body[i:end]...)
		i = end
		if i+1 >= len(body) || body[i] != '\r' || body[i+1] != '\n' {
			return nil, ErrParse
		}
		i += 2
	}
	return out, nil
}

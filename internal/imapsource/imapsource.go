// Package imapsource implements the sync engine's message source on top of an
// IMAP INBOX.
package imapsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/solarmail/solarsync/internal/parser"
	"github.com/solarmail/solarsync/pkg/models"
)

// Config configuration for the IMAP source
type Config struct {
	Email       string
	Password    string
	Server      string // host:port
	DialTimeout time.Duration
}

// Client fetches messages from a single IMAP account. It satisfies the sync
// engine's Source interface.
type Client struct {
	config     Config
	client     *client.Client
	htmlParser *parser.HTMLParser
	logger     *slog.Logger
	mu         sync.Mutex
	connected  bool
}

// New creates a new IMAP source
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config:     cfg,
		htmlParser: parser.NewHTMLParser(),
		logger:     logger.With("email", cfg.Email),
	}
}

// Connect dials the IMAP server over TLS and logs in.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.Server)

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.config.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := imapClient.Login(c.config.Email, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")

	return nil
}

// FetchSince returns INBOX messages with an internal date >= since. IMAP
// SINCE is date-granular; the caller deduplicates the overlap.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]models.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	if _, err := c.client.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var out []models.RawMessage
	for msg := range messages {
		raw, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		out = append(out, raw)
	}

	if err := <-done; err != nil {
		return out, fmt.Errorf("failed to fetch: %w", err)
	}

	return out, nil
}

// parseMessage converts an IMAP message into the engine's RawMessage shape
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (models.RawMessage, error) {
	raw := models.RawMessage{
		UID: strconv.FormatUint(uint64(msg.Uid), 10),
	}

	if msg.Envelope != nil {
		raw.Subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			raw.Date = msg.Envelope.Date
			raw.HasDate = true
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			raw.Sender = from.Address()
			if raw.Sender == "@" || raw.Sender == "" {
				raw.Sender = from.PersonalName
			}
		}
	}

	bodyText, bodyHTML := c.readBody(msg.GetBody(section))

	// Prefer plain text; fall back to HTML stripped to text
	raw.Body = bodyText
	if raw.Body == "" && bodyHTML != "" {
		text, err := c.htmlParser.Parse(bodyHTML)
		if err != nil {
			c.logger.Warn("failed to parse HTML body", "uid", raw.UID, "error", err)
		} else {
			raw.Body = text
		}
	}

	return raw, nil
}

// readBody walks the MIME parts collecting the first text/plain and
// text/html bodies.
func (c *Client) readBody(bodyReader io.Reader) (bodyText, bodyHTML string) {
	if bodyReader == nil {
		return "", ""
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		c.logger.Warn("failed to create mail reader", "error", err)
		return "", ""
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read part", "error", err)
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/html") && bodyHTML == "":
			bodyHTML = string(body)
		case strings.HasPrefix(ct, "text/plain") && bodyText == "":
			bodyText = string(body)
		}
	}

	return bodyText, bodyHTML
}

// Close logs out from the IMAP server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil
	}

	c.connected = false
	if err := c.client.Logout(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Package irc implements the IRC channel on top of girc.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/tagstream/internal/config"
	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/logging"
)

// ChannelID identifies the IRC channel in the registry.
const ChannelID = "irc"

// maxLineBytes keeps a PRIVMSG well inside the 512 byte IRC line limit once
// the prefix and target are added.
const maxLineBytes = 400

var (
	ErrNotConnected = errors.New("irc: not connected")
	ErrNoTarget     = errors.New("irc: no target specified")
)

// Channel implements domain.Channel for IRC. Only channel messages that
// mention the bot's nick start a turn.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	if cfg.Port == 0 {
		cfg.Port = 6667
		if cfg.UseTLS {
			cfg.Port = 6697
		}
	}
	return &Channel{cfg: cfg, log: log.Sub("irc")}
}

func (c *Channel) ID() string { return ChannelID }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: ChannelID,
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start connects and blocks until the connection ends or ctx is done.
func (c *Channel) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.cfg.Port,
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "tagstream",
		SSL:     c.cfg.UseTLS,
		Version: "tagstream",
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	switch {
	case c.cfg.SASL && c.cfg.Password != "":
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	case c.cfg.Password != "":
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.cfg.Port).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the server connection.
func (c *Channel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("shutting down")
	}
	c.running = false
	return nil
}

// Send delivers msg to a channel or nick. Bodies are split into lines of at
// most maxLineBytes; Action renders as CTCP ACTION and Notice as NOTICE.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	if msg.To == "" {
		return ErrNoTarget
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		switch {
		case msg.Action:
			client.Cmd.Action(msg.To, line)
		case msg.Notice:
			client.Cmd.Notice(msg.To, line)
		default:
			client.Cmd.Message(msg.To, line)
		}
	}
	c.log.Debug().Str("to", msg.To).Int("lines", len(lines)).Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		client.Cmd.Join(ch)
		c.log.Info().Str("channel", ch).Msg("joining channel")
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}
	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	msg, ok := c.accept(client.GetNick(), e.Source.Name, e.Params[0], e.IsFromChannel(), body)
	if !ok {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// accept decides whether a PRIVMSG starts a turn and builds the inbound
// message for it. The leading "nick:" or "nick," address is removed.
func (c *Channel) accept(self, from, target string, fromChannel bool, body string) (domain.InboundMessage, bool) {
	if strings.EqualFold(from, self) {
		return domain.InboundMessage{}, false
	}
	if !fromChannel {
		c.log.Debug().Str("nick", from).Msg("ignoring direct message")
		return domain.InboundMessage{}, false
	}
	if !mentions(body, self) {
		return domain.InboundMessage{}, false
	}
	if c.cfg.Owner != "" && !strings.EqualFold(from, c.cfg.Owner) {
		c.log.Debug().Str("nick", from).Str("owner", c.cfg.Owner).Msg("ignoring message from non-owner")
		return domain.InboundMessage{}, false
	}

	prompt := stripAddress(body, self)
	if prompt == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: ChannelID,
		From:      from,
		FromName:  from,
		ChatID:    target,
		ChatType:  domain.ChatTypeGroup,
		Body:      prompt,
		Timestamp: time.Now(),
	}, true
}

func mentions(body, nick string) bool {
	return nick != "" && strings.Contains(strings.ToLower(body), strings.ToLower(nick))
}

func stripAddress(body, nick string) string {
	body = strings.TrimSpace(body)
	if len(body) > len(nick) && strings.EqualFold(body[:len(nick)], nick) {
		rest := body[len(nick):]
		if rest[0] == ':' || rest[0] == ',' {
			return strings.TrimSpace(rest[1:])
		}
	}
	return body
}

// splitMessage breaks text into IRC lines. Every newline starts a new line,
// blank lines are dropped, and long lines are cut at rune boundaries so no
// line exceeds maxLen bytes.
func splitMessage(text string, maxLen int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// Package mailbox is the IMAP collaborator of the digest pipeline:
// it reports the folder identity token and fetches ranges of new
// messages. Transport failures here are batch-fatal for the caller.
package mailbox

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/avolkov/maildigest/internal/model"
)

// Client wraps go-imap v2 for connecting to and querying one IMAP
// server. Each operation dials its own short-lived connection.
type Client struct {
	host     string
	port     int
	username string
	password string
}

// New creates a mailbox client configuration.
func New(host string, port int, username, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// connect establishes a TLS connection, authenticates, and selects the
// folder read-only. The caller must Logout the returned client.
func (c *Client) connect(
	_ context.Context,
	folder string,
) (*imapclient.Client, *imap.SelectData, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, nil, fmt.Errorf(
			"authentication failed for %s: %w", c.username, err,
		)
	}

	selected, err := client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		return nil, nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	return client, selected, nil
}

// FolderIdentity returns the folder's UIDVALIDITY as an opaque token.
// A change in this token means the folder's UID space was invalidated.
func (c *Client) FolderIdentity(
	ctx context.Context,
	folder string,
) (string, error) {
	client, selected, err := c.connect(ctx, folder)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Logout().Wait() }()

	return strconv.FormatUint(uint64(selected.UIDValidity), 10), nil
}

// FetchRange returns up to maxCount messages with UID strictly above
// floorUID, in ascending UID order. When more messages match, the
// newest maxCount are kept so the cursor still reaches the top of the
// folder.
func (c *Client) FetchRange(
	ctx context.Context,
	folder string,
	floorUID uint32,
	maxCount int,
) ([]model.RawMessage, error) {
	client, _, err := c.connect(ctx, folder)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(floorUID + 1)}}
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{uidSet},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching UIDs above %d: %w", floorUID, err)
	}

	uids := searchData.AllUIDs()
	// Some servers interpret N:* as "at least the last message" and
	// echo the floor back; drop anything not strictly above it.
	filtered := uids[:0]
	for _, uid := range uids {
		if uint32(uid) > floorUID {
			filtered = append(filtered, uid)
		}
	}
	uids = filtered

	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if maxCount > 0 && len(uids) > maxCount {
		uids = uids[len(uids)-maxCount:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)

	var messages []model.RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		// A message that cannot be collected is a transport failure.
		// The whole run must abort, or the cursor would advance past
		// a message that was never seen.
		buf, err := msg.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return nil, fmt.Errorf("collecting message: %w", err)
		}

		messages = append(messages, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].UID < messages[j].UID
	})

	return messages, nil
}

// messageFromBuffer extracts a RawMessage from a fetched buffer.
// A body that cannot be parsed degrades to an empty string rather than
// failing the message.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	bodySection *imap.FetchItemBodySection,
) model.RawMessage {
	m := model.RawMessage{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		m.Subject = buf.Envelope.Subject
		m.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			m.FromName = from.Name
			m.FromAddr = from.Addr()
		}
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		m.Body = extractTextBody(raw)
	}

	return m
}

package gmailsync

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
)

// snippetBodySize bounds how much of a message's text/plain part we
// buffer for classification heuristics — large enough to catch the
// kind of language classify() looks for, far short of the full body.
const snippetBodySize = 2 * 1024

// IMAPFetcher is the production Fetcher. It dials fresh for every poll
// and authenticates with XOAUTH2 using the access token handed to
// ListSince, using a SASL XOAUTH2 exchange rather than password Login
// since Gmail access tokens aren't IMAP passwords.
type IMAPFetcher struct {
	Host string
	Port int
	User string
}

// NewIMAPFetcher returns a Fetcher that talks to host:port as user.
func NewIMAPFetcher(host string, port int, user string) *IMAPFetcher {
	return &IMAPFetcher{Host: host, Port: port, User: user}
}

// ListSince connects, authenticates, and returns envelopes for every
// message in INBOX with UID greater than sinceUID (spec §4.3 step 2
// polling contract).
func (f *IMAPFetcher) ListSince(ctx context.Context, accessToken string, sinceUID uint32) ([]Envelope, error) {
	addr := net.JoinHostPort(f.Host, fmt.Sprintf("%d", f.Port))
	client, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: &tls.Config{ServerName: f.Host}})
	if err != nil {
		return nil, fmt.Errorf("gmailsync: dial %s: %w", addr, err)
	}
	defer client.Close()

	saslClient := sasl.NewXoauth2Client(f.User, accessToken)
	if err := client.Authenticate(saslClient).Wait(); err != nil {
		return nil, fmt.Errorf("gmailsync: xoauth2 authenticate: %w", err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("gmailsync: select INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(sinceUID + 1), Stop: 0}}},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("gmailsync: uid search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true}, // classification must not mark mail \Seen.
		},
	})

	var out []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env := Envelope{}
		var rawBody []byte
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch v := item.(type) {
			case imapclient.FetchItemDataUID:
				env.UID = uint32(v.UID)
			case imapclient.FetchItemDataEnvelope:
				if v.Envelope != nil {
					env.Subject = v.Envelope.Subject
					env.Date = v.Envelope.Date
					if len(v.Envelope.From) > 0 {
						env.From = formatAddress(v.Envelope.From[0])
					}
				}
			case imapclient.FetchItemDataBodySection:
				if v.Literal == nil {
					continue
				}
				body, readErr := io.ReadAll(v.Literal)
				_, _ = io.Copy(io.Discard, v.Literal)
				if readErr == nil {
					rawBody = body
				}
			}
		}
		if rawBody != nil {
			env.BodySnippet = extractTextSnippet(rawBody)
		}
		out = append(out, env)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("gmailsync: fetch: %w", err)
	}
	return out, nil
}

// extractTextSnippet walks the MIME structure of a raw RFC822 message
// via go-message/mail and returns the leading text/plain content,
// bounded to snippetBodySize, as a short classification snippet.
func extractTextSnippet(raw []byte) string {
	mailReader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	if mailReader == nil {
		return ""
	}

	for {
		part, err := mailReader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "text/plain" {
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(part.Body, snippetBodySize))
		if readErr != nil {
			return ""
		}
		return strings.TrimSpace(string(body))
	}
	return ""
}

func formatAddress(a imap.Address) string {
	addr := a.Addr()
	if a.Name != "" {
		return a.Name + " <" + addr + ">"
	}
	return addr
}

// Package page describes the browsing context an engine instance is bound to.
package page

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Context identifies one page load. A new Context (and a new SessionID) is
// created per load; session-scoped state does not outlive it.
type Context struct {
	SessionID string
	URL       string
	Host      string
	Origin    string
}

// New parses rawURL and assigns a fresh session id.
func New(rawURL string) (Context, error) {
	c := Context{SessionID: uuid.NewString(), URL: strings.TrimSpace(rawURL)}
	if c.URL == "" {
		return c, nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return c, fmt.Errorf("page url: %w", err)
	}
	c.Host = strings.ToLower(u.Hostname())
	if u.Scheme != "" && u.Host != "" {
		c.Origin = strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	}
	return c, nil
}

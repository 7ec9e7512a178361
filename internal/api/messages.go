package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

const messagesPath = "/api/v1/chat/messages/"

// Messages fetches a room's backlog. Both a bare list and a {"messages": [...]}
// body are accepted; a body with no list yields an empty slice.
func (c *Client) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, messagesPath+url.PathEscape(room), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, "messages")
	if err != nil {
		return nil, err
	}
	msgs, err := chat.DecodeMessages(body)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	return msgs, nil
}

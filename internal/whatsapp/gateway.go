package whatsapp

import "context"

// Gateway adapts the client to the outbound processor's sender contract.
// Business-initiated bodies go out through the one approved notification
// template, the rendered text as its single parameter.
type Gateway struct {
	client   *Client
	template string
}

func NewGateway(client *Client, templateName string) *Gateway {
	return &Gateway{client: client, template: templateName}
}

func (g *Gateway) SendText(ctx context.Context, to, body string) (string, error) {
	return g.client.SendText(ctx, to, body)
}

func (g *Gateway) SendTemplate(ctx context.Context, to, body string) (string, error) {
	return g.client.SendTemplate(ctx, to, g.template, []string{body})
}

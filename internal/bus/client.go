package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// Client is the typed request side of the bus
type Client struct {
	transport Transport
}

func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, cmd models.Command, payload, out any) error {
	req, err := models.NewEnvelope(uuid.New().String(), cmd, payload)
	if err != nil {
		return err
	}
	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) ack(ctx context.Context, cmd models.Command, payload any) error {
	var ack models.Ack
	if err := c.call(ctx, cmd, payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("%s was not acknowledged", cmd)
	}
	return nil
}

func (c *Client) Start(ctx context.Context, cfg models.Config) error {
	return c.ack(ctx, models.CmdStart, models.StartRequest{Config: cfg})
}

func (c *Client) GetState(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.call(ctx, models.CmdGetState, nil, &snap)
	return snap, err
}

func (c *Client) Update(ctx context.Context, req models.UpdateRequest) error {
	return c.ack(ctx, models.CmdUpdate, req)
}

func (c *Client) StorePayment(ctx context.Context, url string, data models.PaymentData) error {
	return c.ack(ctx, models.CmdStorePayment, models.StorePaymentRequest{URL: url, Data: data})
}

func (c *Client) GetPayment(ctx context.Context, url string) (models.PaymentData, error) {
	var data models.PaymentData
	err := c.call(ctx, models.CmdGetPayment, models.GetPaymentRequest{URL: url}, &data)
	return data, err
}

func (c *Client) TrackTab(ctx context.Context, url string) error {
	return c.ack(ctx, models.CmdTrackTab, models.TrackTabRequest{URL: url})
}

func (c *Client) MostRecentTab(ctx context.Context) (*models.TabRecord, error) {
	var resp models.MostRecentTabResponse
	if err := c.call(ctx, models.CmdMostRecentTab, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tab, nil
}

func (c *Client) CloseTabs(ctx context.Context, pattern string) (int, error) {
	var resp models.CloseTabsResponse
	err := c.call(ctx, models.CmdCloseTabs, models.CloseTabsRequest{Pattern: pattern}, &resp)
	return resp.ClosedCount, err
}

func (c *Client) Stop(ctx context.Context) ([]models.ItemRecord, error) {
	var resp models.StopResponse
	err := c.call(ctx, models.CmdStop, nil, &resp)
	return resp.Items, err
}

// TabLoaded forwards a tab-lifecycle event. No reply is expected.
func (c *Client) TabLoaded(ctx context.Context, tabID, url string) error {
	ev, err := models.NewEnvelope("", models.EventTabLoaded, models.TabLoadedEvent{TabID: tabID, URL: url})
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, ev)
}

package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// Client talks to a running server's REST surface
type Client struct {
	http *resty.Client
}

// NewClient creates a REST client for baseURL, e.g. http://localhost:8080
func NewClient(baseURL, clientID string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	if clientID != "" {
		c.SetHeader("X-Client-ID", clientID)
	}
	return &Client{http: c}
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: %s: %s", resp.Request.Method, resp.Request.URL, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func (c *Client) Start(ctx context.Context, cfg models.Config) error {
	var ack models.Ack
	return checkResponse(c.http.R().SetContext(ctx).
		SetBody(models.StartRequest{Config: cfg}).
		SetResult(&ack).
		Post("/v1/session"))
}

func (c *Client) Status(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := checkResponse(c.http.R().SetContext(ctx).SetResult(&snap).Get("/v1/session"))
	return snap, err
}

func (c *Client) Stop(ctx context.Context) ([]models.ItemRecord, error) {
	var resp models.StopResponse
	err := checkResponse(c.http.R().SetContext(ctx).SetResult(&resp).Delete("/v1/session"))
	return resp.Items, err
}

// ExportCSV downloads the current items as CSV
func (c *Client) ExportCSV(ctx context.Context) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/session/export")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) Payment(ctx context.Context, url string) (models.PaymentData, error) {
	var data models.PaymentData
	err := checkResponse(c.http.R().SetContext(ctx).
		SetQueryParam("url", url).
		SetResult(&data).
		Get("/v1/payments"))
	return data, err
}

func (c *Client) CloseTabs(ctx context.Context, pattern string) (int, error) {
	var resp models.CloseTabsResponse
	err := checkResponse(c.http.R().SetContext(ctx).
		SetBody(models.CloseTabsRequest{Pattern: pattern}).
		SetResult(&resp).
		Post("/v1/tabs/close"))
	return resp.ClosedCount, err
}

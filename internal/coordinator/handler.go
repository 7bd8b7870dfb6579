package coordinator

import (
	"context"
	"fmt"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// Handle dispatches one bus frame. The boolean is false for one-way events,
// which get no reply.
func (c *Coordinator) Handle(ctx context.Context, req models.Envelope) (models.Envelope, bool) {
	c.metrics.requests.WithLabelValues(string(req.Type)).Inc()

	if req.Type == models.EventTabLoaded {
		var ev models.TabLoadedEvent
		if err := req.Decode(&ev); err != nil {
			c.logger.Warn("dropping malformed event", "err", err)
			return models.Envelope{}, false
		}
		c.TabLoaded(ev)
		return models.Envelope{}, false
	}

	payload, err := c.dispatch(ctx, req)
	if err != nil {
		return models.Envelope{ID: req.ID, Type: req.Type, Error: err.Error()}, true
	}
	resp, err := models.NewEnvelope(req.ID, req.Type, payload)
	if err != nil {
		return models.Envelope{ID: req.ID, Type: req.Type, Error: err.Error()}, true
	}
	return resp, true
}

func (c *Coordinator) dispatch(ctx context.Context, req models.Envelope) (any, error) {
	switch req.Type {
	case models.CmdStart:
		return c.handleStart(ctx, req)
	case models.CmdUpdate:
		return c.handleUpdate(ctx, req)
	case models.CmdGetState:
		return c.GetState(), nil
	case models.CmdStorePayment:
		return c.handleStorePayment(req)
	case models.CmdGetPayment:
		return c.handleGetPayment(req)
	case models.CmdTrackTab:
		return c.handleTrackTab(req)
	case models.CmdMostRecentTab:
		return models.MostRecentTabResponse{Tab: c.MostRecentTab()}, nil
	case models.CmdCloseTabs:
		return c.handleCloseTabs(ctx, req)
	case models.CmdStop:
		return c.Stop(ctx), nil
	default:
		return nil, fmt.Errorf("unknown command %q", req.Type)
	}
}

func (c *Coordinator) handleStart(ctx context.Context, req models.Envelope) (any, error) {
	var body models.StartRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.Start(ctx, body.Config), nil
}

func (c *Coordinator) handleUpdate(ctx context.Context, req models.Envelope) (any, error) {
	var body models.UpdateRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.Update(ctx, body), nil
}

func (c *Coordinator) handleStorePayment(req models.Envelope) (any, error) {
	var body models.StorePaymentRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.StorePayment(body.URL, body.Data), nil
}

func (c *Coordinator) handleGetPayment(req models.Envelope) (any, error) {
	var body models.GetPaymentRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.GetPayment(body.URL), nil
}

func (c *Coordinator) handleTrackTab(req models.Envelope) (any, error) {
	var body models.TrackTabRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.TrackTab(body.URL), nil
}

func (c *Coordinator) handleCloseTabs(ctx context.Context, req models.Envelope) (any, error) {
	var body models.CloseTabsRequest
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	return c.CloseTabs(ctx, body.Pattern), nil
}

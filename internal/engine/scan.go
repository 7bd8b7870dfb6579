package engine

import (
	"context"
	"fmt"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// buildItem turns a card into an ItemRecord. The bucket is the cap key:
// the matched target model, or the category code when no targets are set.
func (e *Engine) buildItem(c Candidate, cfg models.Config, meta roundMeta) (item models.ItemRecord, bucket string, ok bool) {
	full := NormalizeText(c.FullName)
	if full == "" {
		return item, "", false
	}

	matched := ""
	if len(cfg.TargetModels) > 0 {
		if matched = MatchTarget(full, cfg.TargetModels); matched == "" {
			return item, "", false
		}
	}

	price, ok := ParsePrice(c.PriceText)
	if !ok {
		e.logger.Debug("unparsable price", "name", full, "text", c.PriceText)
		return item, "", false
	}

	company := NormalizeText(c.Company)
	if company == "" {
		company = "Unknown"
	}

	base := BaseName(full)
	code, group := e.classifier.Classify(full, base)

	item = models.ItemRecord{
		FullName:      full,
		BaseName:      base,
		Company:       company,
		Price:         models.Round2(price),
		PickupDate:    meta.pickup,
		DropoffDate:   meta.dropoff,
		RentalDays:    meta.days,
		CategoryCode:  code,
		CategoryGroup: group,
		DetailURL:     c.DetailURL,
		MatchedModel:  matched,
	}
	if meta.days > 0 {
		item.AvgDailyPrice = models.Round2(price / float64(meta.days))
	}
	item.UniqueKey = item.ComputeKey()

	bucket = matched
	if bucket == "" {
		bucket = code
	}
	return item, bucket, true
}

// scan walks the results list until it goes idle, every target is capped or
// the session is stopped. It returns the number of items added.
func (e *Engine) scan(ctx context.Context, st *runState, meta roundMeta) (int, error) {
	counts := make(map[string]int)
	handled := make(map[string]struct{})
	added, idle := 0, 0

	prev, err := e.page.Metrics(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read scroll metrics: %w", err)
	}

	for idle < e.timing.MaxIdleRounds {
		cands, err := e.page.Candidates(ctx)
		if err != nil {
			return added, fmt.Errorf("failed to list candidates: %w", err)
		}

		pass := 0
		for _, c := range cands {
			if _, ok := handled[c.ID]; ok {
				continue
			}

			// cards that do not parse yet are retried on the next pass
			item, bucket, ok := e.buildItem(c, st.cfg, meta)
			if !ok {
				continue
			}
			handled[c.ID] = struct{}{}
			if st.hasSeen(item.UniqueKey) {
				continue
			}
			if counts[bucket] >= st.cfg.MaxPerDate {
				e.logger.Debug("cap reached", "bucket", bucket, "max", st.cfg.MaxPerDate)
				continue
			}

			if err := e.extract(ctx, st, c, &item); err != nil {
				return added, err
			}
			counts[bucket]++
			added++
			pass++

			if e.allTargetsCapped(st.cfg, counts) {
				e.logger.Info("every target model reached its cap", "max", st.cfg.MaxPerDate)
				return added, nil
			}
			active, err := e.active(ctx)
			if err != nil {
				return added, err
			}
			if !active {
				return added, errStopped
			}
		}

		m, err := e.page.Metrics(ctx)
		if err != nil {
			return added, fmt.Errorf("failed to read scroll metrics: %w", err)
		}
		if m.AtBoundary && m.Height == prev.Height && pass == 0 {
			idle++
			e.logger.Debug("idle at boundary", "idle", idle, "max", e.timing.MaxIdleRounds)

			if idle == e.timing.MaxIdleRounds-1 {
				next, err := e.page.Paginate(ctx)
				if err != nil {
					e.logger.Debug("pagination failed", "err", err)
				}
				if next {
					e.logger.Info("moved to next results page")
					idle = 0
					if err := sleep(ctx, e.timing.PaginateSettle); err != nil {
						return added, err
					}
					if err := e.page.ScrollToTop(ctx); err != nil {
						return added, fmt.Errorf("failed to scroll to top: %w", err)
					}
					if prev, err = e.page.Metrics(ctx); err != nil {
						return added, fmt.Errorf("failed to read scroll metrics: %w", err)
					}
					continue
				}
			}
		} else {
			idle = 0
		}
		prev = m

		if idle >= e.timing.MaxIdleRounds {
			break
		}
		if err := e.page.ScrollBy(ctx, e.timing.ScrollStep); err != nil {
			return added, fmt.Errorf("failed to scroll: %w", err)
		}
		if err := sleep(ctx, e.timing.ScanInterval); err != nil {
			return added, err
		}
	}
	return added, nil
}

// extract records the key, runs the handoff when the card has a detail
// control, then appends the item and pushes the accumulated state.
func (e *Engine) extract(ctx context.Context, st *runState, c Candidate, item *models.ItemRecord) error {
	st.markSeen(item.UniqueKey)

	if c.HasDetail || c.DetailURL != "" {
		if err := e.coord.Update(ctx, st.update(item)); err != nil {
			e.logger.Warn("failed to push seen key", "err", err)
		}
		if err := e.handoff(ctx, c, item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("payment enrichment abandoned", "name", item.BaseName, "err", err)
		}
	}

	st.items = append(st.items, *item)
	e.logger.Info("item added", "name", item.BaseName, "company", item.Company, "price", item.Price,
		"pay_now", item.PayNow, "pay_at_pickup", item.PayAtPickup, "total", len(st.items))

	if err := e.coord.Update(ctx, st.update(nil)); err != nil {
		e.logger.Warn("failed to push items", "err", err)
	}
	return nil
}

func (e *Engine) allTargetsCapped(cfg models.Config, counts map[string]int) bool {
	if len(cfg.TargetModels) == 0 {
		return false
	}
	for _, t := range cfg.TargetModels {
		if counts[t] < cfg.MaxPerDate {
			return false
		}
	}
	return true
}

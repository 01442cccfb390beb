package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/cache"
	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/services"
	"github.com/yoockh/civicvoice/internal/sink"
)

type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// SinkWorkerPool delivers complaints queued by sink.Stream. A complaint id is
// delivered at most once; the claim is released when delivery fails so a
// later entry for the same id can try again.
type SinkWorkerPool struct {
	Redis      streamClient
	Sink       sink.Sink
	Complaints services.ComplaintService
	Dedupe     cache.Cache
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	ClaimTTL       time.Duration
	DeliverTimeout time.Duration
}

func (p *SinkWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Sink == nil {
		return errors.New("SinkWorkerPool missing dependency: Redis/Sink must be set")
	}
	if p.Stream == "" {
		p.Stream = sink.DefaultStream
	}
	if p.Group == "" {
		p.Group = "sink-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.ClaimTTL <= 0 {
		p.ClaimTTL = 24 * time.Hour
	}
	if p.DeliverTimeout <= 0 {
		p.DeliverTimeout = 20 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *SinkWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// handleMsg returns the delivery status it recorded.
func (p *SinkWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) string {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	callID := getStr("call_id")
	raw := getStr("complaint")

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": msg.ID,
		"call_id":  callID,
	})

	var c models.Complaint
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.ID == "" || callID == "" {
		log.WithError(err).Warn("dropping malformed complaint entry")
		return "malformed"
	}
	log = log.WithField("complaint_id", c.ID)

	if p.Dedupe != nil {
		won, err := p.Dedupe.Claim(ctx, cache.DeliveredKey(callID, c.ID), p.ClaimTTL)
		if err != nil {
			log.WithError(err).Warn("dedupe claim failed, delivering anyway")
		} else if !won {
			log.Info("complaint already delivered")
			p.mark(ctx, log, func(ctx context.Context) error { return p.Complaints.MarkDuplicate(ctx, callID, c.ID) })
			return models.DeliveryDuplicate
		}
	}

	if p.Complaints != nil {
		// rows can be missing when the dispatcher's ledger write failed
		if err := p.Complaints.Pending(ctx, callID, c); err != nil {
			log.WithError(err).Warn("complaint ledger upsert failed")
		}
	}

	dctx, cancel := context.WithTimeout(ctx, p.DeliverTimeout)
	err := p.Sink.Deliver(dctx, c)
	cancel()

	if err != nil {
		log.WithError(err).Error("complaint delivery failed")
		if p.Dedupe != nil {
			_ = p.Dedupe.Del(ctx, cache.DeliveredKey(callID, c.ID))
		}
		p.mark(ctx, log, func(ctx context.Context) error { return p.Complaints.MarkFailed(ctx, callID, c.ID, err) })
		return models.DeliveryFailed
	}

	log.Info("complaint delivered")
	p.mark(ctx, log, func(ctx context.Context) error { return p.Complaints.MarkDelivered(ctx, callID, c.ID) })
	return models.DeliveryDelivered
}

func (p *SinkWorkerPool) mark(ctx context.Context, log *logrus.Entry, fn func(context.Context) error) {
	if p.Complaints == nil {
		return
	}
	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("complaint ledger update failed")
	}
}

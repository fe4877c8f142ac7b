package sheetsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"bitbucket.org/gezisoft/agency_backend/config"
	"bitbucket.org/gezisoft/agency_backend/models"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SyncPubSubPayload is the message body of a triggered sync. The run already
// exists in "running" state when the message is published; the push handler
// only executes it.
type SyncPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	TenantId     string `json:"tenant_id"`
	ConnectionId uint   `json:"connection_id"`
	Trigger      string `json:"trigger"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func syncTopicName() string {
	if v := strings.TrimSpace(os.Getenv("SHEET_SYNC_TOPIC")); v != "" {
		return v
	}
	return "sheet-sync"
}

// PublishSyncTrigger enqueues a sync for asynchronous execution by the push
// endpoint.
func PublishSyncTrigger(ctx context.Context, payload SyncPubSubPayload) error {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topicName := syncTopicName()
	topic := client.Topic(topicName)
	if envBoolDefault("SHEET_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler executes a published sync trigger. It always returns 204
// so Pub/Sub does not redeliver: the run record carries the outcome, and a
// duplicate delivery finds the run already terminal and does nothing.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SHEET_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.TenantId == "" {
			c.Status(204)
			return
		}

		_ = ExecutePublishedRun(c.Request.Context(), config.GetDB(), engine, payload)
		c.Status(204)
	}
}

// ExecutePublishedRun resolves a published trigger to its pre-created run and
// executes it. Redeliveries of already-finished runs are no-ops.
func ExecutePublishedRun(ctx context.Context, db *gorm.DB, engine *Engine, payload SyncPubSubPayload) error {
	var run models.SheetSyncRun
	if err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", payload.RunId, payload.TenantId).
		Take(&run).Error; err != nil {
		return err
	}
	if run.Status != models.SyncRunStatusRunning {
		return nil
	}

	var conn models.SheetConnection
	if err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", payload.ConnectionId, payload.TenantId).
		Take(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = models.SyncTriggerManual
	}

	// The push execution creates its own run; the placeholder trigger run is
	// linked to it as parent and closed.
	child, err := engine.RunSync(ctx, conn, trigger, &run.ID)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Model(&models.SheetSyncRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":      child.Status,
			"finished_at": child.FinishedAt,
			"duration_ms": child.DurationMs,
		}).Error
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Package bus implements the MessageBus of §4.7: a Publisher (ordered batch
// publish) and a Subscriber (single-channel callback), transported over
// go-redis/redis/v7 pub/sub per the REDIS_* configuration surface of §6.
//
// This follows the same Publish/Subscribe/topic-prefix shape as a
// kafka-backed EventBroker (datasync/chaindatafetcher/kafka/{config,
// repository}.go), with redis channels standing in for kafka topics.
package bus

import (
	"sort"
	"strconv"

	"github.com/go-redis/redis/v7"

	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/pipeline"
)

var logger = logging.Named("bus")

func newRedisClient(cfg config.Redis) *redis.Client {
	opts := &redis.Options{
		Addr:     addr(cfg),
		Password: cfg.Password,
		DB:       cfg.Database,
	}
	return redis.NewClient(opts)
}

func addr(cfg config.Redis) string {
	return cfg.Host + ":" + strconv.Itoa(cfg.Port)
}

// sortByTimestamp sorts msgs ascending by Timestamp, the ordering
// publishBatch must apply before sending (§4.7).
func sortByTimestamp(msgs []pipeline.BlockchainMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.Transient(err)
}

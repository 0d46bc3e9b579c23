// Command kafka_producer floods the activity topic with synthetic events to
// measure producer throughput and load the invalidation worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/segmentio/kafka-go"
)

// kinds cycles through the events the worker handles; a third of them need
// a follower lookup.
var kinds = []models.EventKind{
	models.EventPostCreated,
	models.EventFollowCreated,
	models.EventRepostCreated,
}

func main() {
	var (
		total, batchSize, numWorkers, actors int
		broker, topic                        string
	)
	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending events")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel producers")
	flag.IntVar(&actors, "actors", 1000, "number of distinct synthetic actors")
	flag.StringVar(&broker, "broker", "localhost:29092", "Kafka broker")
	flag.StringVar(&topic, "topic", "feed-activity", "activity topic")
	flag.Parse()

	w := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		RequiredAcks: kafka.RequireOne,
	}
	defer w.Close()

	actorIDs := make([]string, actors)
	for i := range actorIDs {
		actorIDs[i] = gocql.TimeUUID().String()
	}

	start := time.Now()
	var successCount, failCount uint64

	flush := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			atomic.AddUint64(&failCount, uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		atomic.AddUint64(&successCount, uint64(len(batch)))
	}

	jobs := make(chan int, numWorkers*batchSize)
	var wg sync.WaitGroup
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			for i := range jobs {
				ev := models.Event{
					Kind:    kinds[i%len(kinds)],
					ActorID: actorIDs[i%len(actorIDs)],
					At:      time.Now().UTC(),
				}
				switch ev.Kind {
				case models.EventFollowCreated:
					ev.TargetID = actorIDs[(i+1)%len(actorIDs)]
				default:
					ev.PostID = gocql.TimeUUID().String()
				}

				msg, err := appkafka.EncodeEvent(ev)
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					continue
				}
				batch = append(batch, msg)

				if len(batch) >= batchSize {
					flush(batch)
					batch = batch[:0]
				}
			}

			if len(batch) > 0 {
				flush(batch)
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f events/s\n", float64(successCount)/elapsed.Seconds())
}

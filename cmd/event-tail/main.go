package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/scrim-lobby/internal/kafka"
)

// tally counts exported events per type
type tally struct {
	mu     sync.Mutex
	counts map[string]int64
	total  int64
}

func (t *tally) add(eventType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[eventType]++
	t.total++
}

func (t *tally) print() {
	t.mu.Lock()
	defer t.mu.Unlock()
	types := make([]string, 0, len(t.counts))
	for k := range t.counts {
		types = append(types, k)
	}
	sort.Strings(types)
	fmt.Printf("  Total: %d\n", t.total)
	for _, k := range types {
		fmt.Printf("    %-24s %d\n", k, t.counts[k])
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "scrim-events", "Kafka topic")
	scrimID := flag.String("scrim", "", "Only print events of this scrim")
	fromStart := flag.Bool("from-start", false, "Read the topic from the oldest offset")
	quiet := flag.Bool("quiet", false, "Only print periodic counts")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Scrim event tail")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	if *scrimID != "" {
		fmt.Printf("  Scrim:            %s\n", *scrimID)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}
	defer consumer.Close()

	partitions, err := consumer.Partitions(*topic)
	if err != nil {
		log.Fatalf("Failed to list partitions: %v", err)
	}

	offset := sarama.OffsetNewest
	if *fromStart {
		offset = sarama.OffsetOldest
	}

	counts := &tally{counts: make(map[string]int64)}
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(*topic, partition, offset)
		if err != nil {
			log.Fatalf("Failed to consume partition %d: %v", partition, err)
		}

		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.AsyncClose()
			for {
				select {
				case <-done:
					return
				case err, ok := <-pc.Errors():
					if !ok {
						return
					}
					log.Printf("Consumer error: %v", err)
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					var env kafka.Envelope
					if err := json.Unmarshal(msg.Value, &env); err != nil {
						log.Printf("Skipping malformed message at offset %d: %v", msg.Offset, err)
						continue
					}
					if *scrimID != "" && env.ScrimID != *scrimID {
						continue
					}
					counts.add(env.Type)
					if !*quiet {
						fmt.Printf("%s  %-24s scrim=%s  %s\n",
							env.OccurredAt.Format(time.RFC3339), env.Type, env.ScrimID, string(env.Payload))
					}
				}
			}
		}(pc)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			close(done)
			wg.Wait()
			counts.print()
			return
		case <-statsTicker.C:
			counts.print()
		}
	}
}

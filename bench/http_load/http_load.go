// Command http_load seeds a small social graph and then measures GET /feed
// latency under concurrent readers.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialfeed/bench/stats"
)

// UserResp represents the response returned by the server after user creation
type UserResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type postResp struct {
	ID string `json:"id"`
}

type seeder struct {
	client *http.Client
	server string
}

func (s *seeder) do(method, path, token string, body any, out any) error {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(context.Background(), method, s.server+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func main() {
	// --- Command-line flags ---
	var (
		server, certFile, keyFile, csvFile string
		duration, concurrency             int
		follows, posts, reposts           int
		trimPercent                       float64
	)
	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&certFile, "cert", "", "client certificate for TLS (optional)")
	flag.StringVar(&keyFile, "key", "", "client key for TLS (optional)")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent readers, one user each")
	flag.IntVar(&follows, "follows", 10, "followees per user")
	flag.IntVar(&posts, "posts", 5, "posts per user")
	flag.IntVar(&reposts, "reposts", 3, "reposts per user")
	flag.StringVar(&csvFile, "csv", "feed_latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.Parse()

	client, err := stats.NewClient(certFile, keyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	s := &seeder{client: client, server: server}

	// --- Seed users, follows, posts and reposts ---
	fmt.Printf("Seeding %d users...\n", concurrency)
	users := make([]UserResp, concurrency)
	for i := range users {
		name := fmt.Sprintf("load-%d-%d", i, time.Now().UnixNano()%1e9)
		if err := s.do(http.MethodPost, "/users", "", map[string]string{"username": name}, &users[i]); err != nil {
			fmt.Fprintln(os.Stderr, "create user:", err)
			os.Exit(1)
		}
	}

	for _, u := range users {
		for j := 0; j < follows && len(users) > 1; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.UserID == u.UserID {
				continue
			}
			if err := s.do(http.MethodPost, "/follow", u.Token, map[string]string{"followee_id": followee.UserID}, nil); err != nil {
				fmt.Fprintln(os.Stderr, "follow:", err)
			}
		}
	}

	var postIDs []string
	for _, u := range users {
		for j := 0; j < posts; j++ {
			var p postResp
			if err := s.do(http.MethodPost, "/posts", u.Token, map[string]string{"body": fmt.Sprintf("seed post %d", j)}, &p); err != nil {
				fmt.Fprintln(os.Stderr, "post:", err)
				continue
			}
			postIDs = append(postIDs, p.ID)
		}
	}

	for _, u := range users {
		for j := 0; j < reposts && len(postIDs) > 0; j++ {
			pid := postIDs[rand.Intn(len(postIDs))]
			if err := s.do(http.MethodPost, "/reposts", u.Token, map[string]string{"post_id": pid}, nil); err != nil {
				fmt.Fprintln(os.Stderr, "repost:", err)
			}
		}
	}
	fmt.Printf("Seeded %d posts.\n", len(postIDs))

	// --- Concurrent feed reads ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup
	var requests, successes, errors4xx, errors5xx, entries int64
	latencySlices := make([][]float64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			token := users[idx].Token
			var local []float64

			for time.Now().Before(stopTime) {
				req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server+"/feed", nil)
				req.Header.Set("Authorization", "Bearer "+token)

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&requests, 1)
					fmt.Printf("Request error: %v\n", err)
					continue
				}
				var feed []json.RawMessage
				decodeErr := json.NewDecoder(resp.Body).Decode(&feed)
				resp.Body.Close()
				local = append(local, time.Since(start).Seconds()*1000)
				atomic.AddInt64(&requests, 1)

				switch {
				case resp.StatusCode >= 500:
					atomic.AddInt64(&errors5xx, 1)
				case resp.StatusCode >= 400:
					atomic.AddInt64(&errors4xx, 1)
				case decodeErr == nil:
					atomic.AddInt64(&successes, 1)
					atomic.AddInt64(&entries, int64(len(feed)))
				}
			}
			latencySlices[idx] = local
		}(i)
	}
	wg.Wait()

	var all []float64
	for _, slice := range latencySlices {
		all = append(all, slice...)
	}
	summary := stats.Summarize(all, trimPercent)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	if successes > 0 {
		fmt.Printf("Average feed length: %.1f\n", float64(entries)/float64(successes))
	}
	fmt.Printf("Latency (ms): %s\n", summary)

	if err := stats.WriteCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

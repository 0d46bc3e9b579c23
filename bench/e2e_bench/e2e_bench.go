// Command e2e_bench measures how long a new post takes to show up in the
// followers' feeds. Every follower's feed is read once beforehand, so with
// caching enabled the number covers the whole invalidation path: Kafka
// event, worker audience lookup and cache delete.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialfeed/bench/stats"
)

type userResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Created  time.Time `json:"created"`
}

type feedEntry struct {
	Post post `json:"post"`
}

type client struct {
	http   *http.Client
	server string
}

func (c *client) call(ctx context.Context, method, path, token string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) feedHas(ctx context.Context, token, postID string) bool {
	var entries []feedEntry
	if err := c.call(ctx, http.MethodGet, "/feed", token, nil, &entries); err != nil {
		return false
	}
	for _, e := range entries {
		if e.Post.ID == postID {
			return true
		}
	}
	return false
}

func main() {
	var (
		serverAddr, certFile, keyFile string
		numUsers, follows, numPosts   int
		concurrency, pollTimeout      int
	)
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&certFile, "cert", "", "client certificate for TLS (optional)")
	flag.StringVar(&keyFile, "key", "", "client key for TLS (optional)")
	flag.IntVar(&numUsers, "users", 50, "number of users to create")
	flag.IntVar(&follows, "follows", 10, "average follows per user")
	flag.IntVar(&numPosts, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for a post to become visible")
	flag.Parse()

	ctx := context.Background()
	hc, err := stats.NewClient(certFile, keyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c := &client{http: hc, server: serverAddr}

	// --- 1) Users ---
	fmt.Printf("Creating %d users...\n", numUsers)
	users := make([]userResp, numUsers)
	for i := range users {
		name := fmt.Sprintf("e2e-%d-%d", i, time.Now().UnixNano()%1e9)
		if err := c.call(ctx, http.MethodPost, "/users", "", map[string]string{"username": name}, &users[i]); err != nil {
			fmt.Fprintln(os.Stderr, "create user:", err)
			os.Exit(1)
		}
	}
	tokens := make(map[string]string, len(users))
	for _, u := range users {
		tokens[u.UserID] = u.Token
	}

	// --- 2) Follow graph, kept as followee -> followers ---
	fmt.Printf("Creating follows (~%d per user)...\n", follows)
	followers := make(map[string]map[string]struct{})
	for _, u := range users {
		for j := 0; j < follows; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.UserID == u.UserID {
				continue
			}
			if err := c.call(ctx, http.MethodPost, "/follow", u.Token, map[string]string{"followee_id": followee.UserID}, nil); err != nil {
				fmt.Fprintln(os.Stderr, "follow:", err)
				os.Exit(1)
			}
			if followers[followee.UserID] == nil {
				followers[followee.UserID] = make(map[string]struct{})
			}
			followers[followee.UserID][u.UserID] = struct{}{}
		}
	}

	// --- 3) Warm every feed so the cache holds a stale copy ---
	for _, u := range users {
		_ = c.call(ctx, http.MethodGet, "/feed", u.Token, nil, nil)
	}

	// --- 4) Publish posts and poll each follower until the post is visible ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", numPosts, concurrency)
	var (
		wg        sync.WaitGroup
		latMu     sync.Mutex
		latencies []float64
		failCount int64
	)
	sem := make(chan struct{}, concurrency)

	for i := 0; i < numPosts; i++ {
		author := users[rand.Intn(len(users))]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var p post
			if err := c.call(ctx, http.MethodPost, "/posts", author.Token, map[string]string{"body": fmt.Sprintf("e2e %d", rand.Int())}, &p); err != nil {
				fmt.Println("post error:", err)
				return
			}
			published := time.Now()

			var checks sync.WaitGroup
			for fid := range followers[author.UserID] {
				checks.Add(1)
				go func(token string) {
					defer checks.Done()
					deadline := published.Add(time.Duration(pollTimeout) * time.Second)
					for time.Now().Before(deadline) {
						if c.feedHas(ctx, token, p.ID) {
							latMu.Lock()
							latencies = append(latencies, time.Since(published).Seconds()*1000)
							latMu.Unlock()
							return
						}
						time.Sleep(50 * time.Millisecond)
					}
					atomic.AddInt64(&failCount, 1)
				}(tokens[fid])
			}
			checks.Wait()
		}()
	}
	wg.Wait()

	// --- 5) Report ---
	if len(latencies) == 0 {
		fmt.Println("No post became visible.")
		return
	}
	fmt.Printf("Visibility (ms): %s fails=%d\n", stats.Summarize(latencies, 1.0), failCount)
	if err := stats.WriteCSV("e2e_latencies.csv", latencies); err != nil {
		fmt.Println("Failed to write CSV:", err)
		return
	}
	fmt.Println("Saved e2e_latencies.csv")
}

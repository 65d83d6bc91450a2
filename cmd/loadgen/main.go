// Load generator: registers a set of users, funds them, then fires
// concurrent transfer bursts at the API. Outcomes are executed by the
// worker asynchronously; this tool measures enqueue throughput and lets the
// conservation invariants be checked afterwards.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "API base URL")
	users     = flag.Int("users", 10, "number of users to register")
	transfers = flag.Int("transfers", 200, "number of transfers to enqueue")
	workers   = flag.Int("concurrency", 8, "concurrent request senders")
	fund      = flag.String("fund", "1000.00", "initial balance credited to each user")
)

type client struct {
	http  *http.Client
	base  string
	token string
}

func (c *client) post(path string, body any, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func (c *client) get(path string, out any) (int, error) {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func main() {
	flag.Parse()
	if *users < 2 {
		// Transfers need distinct sender and receiver.
		fmt.Fprintln(os.Stderr, "-users must be at least 2")
		os.Exit(1)
	}
	c := &client{http: &http.Client{Timeout: 10 * time.Second}, base: *baseURL}

	run := time.Now().UnixNano()
	names := make([]string, *users)
	for i := range names {
		names[i] = fmt.Sprintf("loadgen_%d_%d", run, i)
	}

	fmt.Printf("registering %d users...\n", len(names))
	for _, name := range names {
		code, err := c.post("/api/v1/auth/register", map[string]string{
			"username": name, "password": "loadgen-pass",
		}, nil)
		if err != nil || code != http.StatusAccepted {
			fmt.Fprintf(os.Stderr, "register %s: code=%d err=%v\n", name, code, err)
			os.Exit(1)
		}
	}

	// Registration is async; poll login until the worker has created the
	// first account, then collect ids.
	var loginResp struct {
		Token string `json:"token"`
	}
	deadline := time.Now().Add(30 * time.Second)
	for {
		code, err := c.post("/api/v1/auth/login", map[string]string{
			"username": names[0], "password": "loadgen-pass",
		}, &loginResp)
		if err == nil && code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			fmt.Fprintln(os.Stderr, "worker did not register users in time")
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}
	c.token = loginResp.Token

	var usersResp struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	}
	ids := map[string]string{}
	for time.Now().Before(deadline) {
		if _, err := c.get("/api/v1/users", &usersResp); err == nil {
			for _, u := range usersResp.Users {
				ids[u.Username] = u.ID
			}
		}
		complete := true
		for _, name := range names {
			if ids[name] == "" {
				complete = false
				break
			}
		}
		if complete {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	accountIDs := make([]string, 0, len(names))
	for _, name := range names {
		id := ids[name]
		if id == "" {
			fmt.Fprintf(os.Stderr, "account missing for %s\n", name)
			os.Exit(1)
		}
		accountIDs = append(accountIDs, id)
	}

	fmt.Printf("funding %d accounts with %s each...\n", len(accountIDs), *fund)
	for _, id := range accountIDs {
		code, err := c.post("/api/v1/balances/"+id+"/credit", map[string]string{"amount": *fund}, nil)
		if err != nil || code != http.StatusOK {
			fmt.Fprintf(os.Stderr, "credit %s: code=%d err=%v\n", id, code, err)
			os.Exit(1)
		}
	}

	fmt.Printf("enqueueing %d transfers with concurrency %d...\n", *transfers, *workers)
	var queued, rejected atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for range jobs {
				from := accountIDs[rng.Intn(len(accountIDs))]
				to := accountIDs[rng.Intn(len(accountIDs))]
				for to == from {
					to = accountIDs[rng.Intn(len(accountIDs))]
				}
				amount := fmt.Sprintf("%d.%02d", 1+rng.Intn(20), rng.Intn(100))
				code, err := c.post("/api/v1/transactions", map[string]string{
					"sender_id": from, "receiver_id": to, "amount": amount,
				}, nil)
				if err == nil && code == http.StatusAccepted {
					queued.Add(1)
				} else {
					rejected.Add(1)
				}
			}
		}(run + int64(w))
	}
	for i := 0; i < *transfers; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("queued=%d rejected=%d in %s (%.0f req/s)\n",
		queued.Load(), rejected.Load(), elapsed,
		float64(queued.Load()+rejected.Load())/elapsed.Seconds())
}

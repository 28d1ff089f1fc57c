package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type LoadTestResult struct {
	TotalRequests   int
	SuccessCount    int32
	FailureCount    int32
	TotalDuration   time.Duration
	RequestsPerSec  float64
	AvgResponseTime time.Duration
	MinResponseTime time.Duration
	MaxResponseTime time.Duration
	Errors          map[string]int
}

// webhookPayload builds one inbound SMS callback the way voip.ms delivers
// them. Every request gets a fresh message ID so none are deduplicated.
func webhookPayload(reqNum int) url.Values {
	form := url.Values{}
	form.Set("event_type", "sms")
	form.Set("message_id", fmt.Sprintf("load-%d-%d", time.Now().UnixNano(), reqNum))
	form.Set("from_number", fmt.Sprintf("1555%07d", reqNum%10000000))
	form.Set("body", fmt.Sprintf("Load test message #%d", reqNum))
	form.Set("timestamp", time.Now().UTC().Format("2006-01-02 15:04:05"))
	return form
}

func runLoadTest(webhookURL string, numRequests int, concurrency int) *LoadTestResult {
	var (
		successCount  int32
		failureCount  int32
		totalRespTime int64
		minRespTime   int64 = int64(^uint64(0) >> 1) // Max int64
		maxRespTime   int64
		errorsMu      sync.Mutex
		errors        = make(map[string]int)
		wg            sync.WaitGroup
		semaphore     = make(chan struct{}, concurrency)
	)

	startTime := time.Now()

	fmt.Printf("\n🚀 Starting load test: %d webhook deliveries with concurrency %d\n", numRequests, concurrency)
	fmt.Printf("Target: %s\n", webhookURL)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{} // Acquire semaphore

		go func(reqNum int) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release semaphore

			reqStart := time.Now()

			form := webhookPayload(reqNum)
			resp, err := http.Post(webhookURL, "application/x-www-form-urlencoded",
				strings.NewReader(form.Encode()))
			reqDuration := time.Since(reqStart)

			// Track response time
			respTimeNs := reqDuration.Nanoseconds()
			atomic.AddInt64(&totalRespTime, respTimeNs)

			// Update min/max response times
			for {
				oldMin := atomic.LoadInt64(&minRespTime)
				if respTimeNs >= oldMin || atomic.CompareAndSwapInt64(&minRespTime, oldMin, respTimeNs) {
					break
				}
			}
			for {
				oldMax := atomic.LoadInt64(&maxRespTime)
				if respTimeNs <= oldMax || atomic.CompareAndSwapInt64(&maxRespTime, oldMax, respTimeNs) {
					break
				}
			}

			if err != nil {
				atomic.AddInt32(&failureCount, 1)
				errorsMu.Lock()
				errors[err.Error()]++
				errorsMu.Unlock()
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)

			// The webhook acknowledges every authenticated delivery with "ok"
			if resp.StatusCode != http.StatusOK || string(body) != "ok" {
				atomic.AddInt32(&failureCount, 1)
				errorsMu.Lock()
				errMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))
				errors[errMsg]++
				errorsMu.Unlock()
				return
			}

			atomic.AddInt32(&successCount, 1)

			// Progress indicator
			if reqNum%10 == 0 {
				fmt.Print(".")
			}
		}(i)
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return &LoadTestResult{
		TotalRequests:   numRequests,
		SuccessCount:    successCount,
		FailureCount:    failureCount,
		TotalDuration:   totalDuration,
		RequestsPerSec:  float64(numRequests) / totalDuration.Seconds(),
		AvgResponseTime: time.Duration(totalRespTime / int64(numRequests)),
		MinResponseTime: time.Duration(minRespTime),
		MaxResponseTime: time.Duration(maxRespTime),
		Errors:          errors,
	}
}

func printResults(result *LoadTestResult) {
	fmt.Printf("\n📊 Load Test Results\n")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Total Requests:      %d\n", result.TotalRequests)
	fmt.Printf("✅ Success:           %d (%.2f%%)\n", result.SuccessCount, float64(result.SuccessCount)/float64(result.TotalRequests)*100)
	fmt.Printf("❌ Failed:            %d (%.2f%%)\n", result.FailureCount, float64(result.FailureCount)/float64(result.TotalRequests)*100)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("⏱️  Total Duration:    %v\n", result.TotalDuration)
	fmt.Printf("⚡ Requests/sec:      %.2f\n", result.RequestsPerSec)
	fmt.Printf("📈 Avg Response Time: %v\n", result.AvgResponseTime)
	fmt.Printf("⬇️  Min Response Time: %v\n", result.MinResponseTime)
	fmt.Printf("⬆️  Max Response Time: %v\n", result.MaxResponseTime)

	if len(result.Errors) > 0 {
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println("❌ Errors:")
		for errMsg, count := range result.Errors {
			fmt.Printf("   • %s: %d times\n", errMsg, count)
		}
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: load-test <webhook-url>")
		fmt.Println("💡 Get the URL with: curl http://localhost:8080/api/webhook-url")
		os.Exit(1)
	}
	webhookURL := os.Args[1]

	target, err := url.Parse(webhookURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		fmt.Printf("❌ Error: %q is not an absolute URL\n", webhookURL)
		os.Exit(1)
	}

	// Check if server is running
	fmt.Println("🔍 Checking if server is running...")
	resp, err := http.Get(target.Scheme + "://" + target.Host + "/health")
	if err != nil {
		fmt.Printf("❌ Error: Cannot connect to server at %s\n", target.Host)
		fmt.Println("💡 Make sure the gateway is running: go run ./cmd/gateway")
		return
	}
	resp.Body.Close()
	fmt.Println("✅ Server is running")

	// Test 1: 100 deliveries with 10 concurrent connections
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("TEST 1: 100 Deliveries (Concurrency: 10)")
	fmt.Println("═══════════════════════════════════════════════════════")
	result100 := runLoadTest(webhookURL, 100, 10)
	printResults(result100)

	// Wait a bit between tests
	fmt.Println("⏳ Waiting 3 seconds before next test...")
	time.Sleep(3 * time.Second)

	// Test 2: 1000 deliveries with 50 concurrent connections
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("TEST 2: 1000 Deliveries (Concurrency: 50)")
	fmt.Println("═══════════════════════════════════════════════════════")
	result1000 := runLoadTest(webhookURL, 1000, 50)
	printResults(result1000)

	// Summary comparison
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("📊 COMPARISON SUMMARY")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("100 Deliveries:  %.2f req/sec | Avg: %v\n", result100.RequestsPerSec, result100.AvgResponseTime)
	fmt.Printf("1000 Deliveries: %.2f req/sec | Avg: %v\n", result1000.RequestsPerSec, result1000.AvgResponseTime)
	fmt.Println("═══════════════════════════════════════════════════════")
}

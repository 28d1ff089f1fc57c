package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
)

// mock-voipms emulates the voip.ms REST endpoint for local development.
// Point the gateway at it with VOIPMS_API_URL=http://localhost:9090/api/v1/rest.php
// and, optionally, set WEBHOOK_URL to the gateway's tokenized webhook URL to
// have every accepted message answered with a simulated inbound SMS.

var nextID atomic.Int64

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := getenv("HTTP_ADDR", ":9090")
	webhookURL := getenv("WEBHOOK_URL", "")

	fiberApp := fiber.New(fiber.Config{AppName: "mock-voipms"})

	// POST /api/v1/rest.php accepts sendSMS/sendMMS submissions the way
	// voip.ms does and replies with a numeric message ID.
	fiberApp.Post("/api/v1/rest.php", func(c *fiber.Ctx) error {
		if c.FormValue("api_username") == "" || c.FormValue("api_password") == "" {
			return c.JSON(fiber.Map{"status": "invalid_credentials"})
		}
		if c.FormValue("did") == "" {
			return c.JSON(fiber.Map{"status": "missing_did"})
		}
		dst := c.FormValue("dst")
		if dst == "" {
			return c.JSON(fiber.Map{"status": "missing_dst"})
		}
		// A dst ending in 0000 simulates an account without credit
		if strings.HasSuffix(dst, "0000") {
			return c.JSON(fiber.Map{"status": "not_enough_credit"})
		}

		id := nextID.Add(1)
		body := c.FormValue("message")

		switch c.FormValue("method") {
		case "sendSMS":
			if body == "" {
				return c.JSON(fiber.Map{"status": "missing_message"})
			}
			log.Info("mock provider accepted sms", "dst", dst, "id", id)
			if webhookURL != "" {
				go simulateReply(webhookURL, dst, body, log)
			}
			return c.JSON(fiber.Map{"status": "success", "sms": id})

		case "sendMMS":
			if c.FormValue("media1") == "" {
				return c.JSON(fiber.Map{"status": "mms_failed"})
			}
			log.Info("mock provider accepted mms", "dst", dst, "id", id)
			if webhookURL != "" {
				go simulateReply(webhookURL, dst, body, log)
			}
			return c.JSON(fiber.Map{"status": "success", "mms": id})

		default:
			return c.JSON(fiber.Map{"status": "invalid_method"})
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-voipms listening", "addr", addr)
		if err := fiberApp.Listen(addr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-voipms")
	_ = fiberApp.Shutdown()
}

// simulateReply posts an inbound SMS callback to the gateway webhook after a
// short delay, as if the recipient had answered.
func simulateReply(hookURL, from, text string, log *slog.Logger) {
	time.Sleep(500 * time.Millisecond) // the carrier takes a moment

	form := url.Values{}
	form.Set("event_type", "sms")
	form.Set("message_id", strconv.FormatInt(nextID.Add(1), 10))
	form.Set("from_number", from)
	form.Set("body", "re: "+text)
	form.Set("timestamp", time.Now().UTC().Format("2006-01-02 15:04:05"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Error("create webhook request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error("webhook call failed", "err", err)
		return
	}
	defer resp.Body.Close()
	log.Info("webhook called", "from", from, "status", resp.StatusCode)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

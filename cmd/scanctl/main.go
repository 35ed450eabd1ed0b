// Command scanctl drives the handheld scan workflow from stdin, one command per line:
//
//	card <nfc-card-id>
//	user <user-uuid>
//	lookup <assembly-barcode>
//	batch <batch-barcode>
//	add <assembly-barcode>
//	remove <assembly-uuid>
//	status <assembly-uuid> <status>
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
	"github.com/yungbote/trackflow-backend/internal/platform/httpx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/scan"
)

func main() {
	var (
		apiURL  string
		userID  string
		timeout time.Duration
		retries int
	)
	flag.StringVar(&apiURL, "api", envutil.String("TRACKFLOW_API_URL", "http://localhost:8080"), "TrackFlow API base URL")
	flag.StringVar(&userID, "user", envutil.String("TRACKFLOW_USER_ID", ""), "operator user id (optional; a card tap adopts the card owner)")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "per-request timeout")
	flag.IntVar(&retries, "retries", 3, "attempts for idempotent requests")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client, err := scan.NewClient(apiURL, scan.ClientOptions{
		Timeout: timeout,
		Retry:   httpx.RetryPolicy{Attempts: retries},
	})
	if err != nil {
		log.Fatal("invalid api url", "error", err)
	}
	screen := scan.NewScreen(log, client)
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			log.Fatal("invalid -user", "error", err)
		}
		screen.SetOperator(id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := loop(ctx, screen, os.Stdin, os.Stdout); err != nil {
		log.Error("scanctl stopped", "error", err)
		os.Exit(1)
	}
}

func loop(ctx context.Context, screen *scan.Screen, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		res, err := dispatch(ctx, screen, fields)
		if err != nil {
			fmt.Fprintf(out, "%s error: %v\n", fields[0], err)
			continue
		}
		b, _ := json.Marshal(res)
		fmt.Fprintf(out, "%s %s: %s\n", fields[0], screen.State(), b)
	}
	return sc.Err()
}

func dispatch(ctx context.Context, screen *scan.Screen, f []string) (any, error) {
	arg := func(i int) string {
		if i < len(f) {
			return f[i]
		}
		return ""
	}
	switch strings.ToLower(f[0]) {
	case "card":
		return screen.TapCard(ctx, arg(1))
	case "user":
		id, err := uuid.Parse(arg(1))
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		screen.SetOperator(id)
		return map[string]string{"user_id": id.String()}, nil
	case "lookup":
		return screen.LookupAssembly(ctx, arg(1))
	case "batch":
		return screen.SelectBatch(ctx, arg(1))
	case "add":
		return screen.AddToBatch(ctx, arg(1))
	case "remove":
		id, err := uuid.Parse(arg(1))
		if err != nil {
			return nil, fmt.Errorf("invalid assembly id: %w", err)
		}
		return screen.RemoveFromBatch(ctx, id)
	case "status":
		id, err := uuid.Parse(arg(1))
		if err != nil {
			return nil, fmt.Errorf("invalid assembly id: %w", err)
		}
		return screen.ChangeStatus(ctx, id, strings.Join(f[2:], " "))
	default:
		return nil, fmt.Errorf("unknown command %q", f[0])
	}
}

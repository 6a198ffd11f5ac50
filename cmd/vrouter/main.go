package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"ip-tcp-in-peace/pkg/ipstack"
	"ip-tcp-in-peace/pkg/lnxconfig"
)

func main() {
	if len(os.Args) != 3 || os.Args[1] != "--config" {
		fmt.Println("Usage: vrouter --config <lnx file>")
		os.Exit(1)
	}

	cfg, err := lnxconfig.ParseConfig(os.Args[2])
	if err != nil {
		fmt.Println("Error parsing config:", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	router, links, err := ipstack.InitRouter(cfg)
	if err != nil {
		fmt.Println("Error initializing node:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// The router is single-threaded; every entry into it holds mu.
	var mu sync.Mutex

	for i, link := range links {
		iface := router.Interface(i)
		go func(link *ipstack.UDPLink) {
			err := link.Listen(ctx, func(frame ipstack.EthernetFrame) {
				mu.Lock()
				defer mu.Unlock()
				iface.RecvFrame(frame)
				router.Route()
			})
			if err != nil {
				slog.Error("Error reading from interface", "Interface", link.Name, "error", err)
			}
		}(link)
	}

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.TickInterval) * time.Millisecond)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				elapsed := uint64(now.Sub(last).Milliseconds())
				last = last.Add(time.Duration(elapsed) * time.Millisecond)
				mu.Lock()
				for _, iface := range router.Interfaces() {
					iface.Tick(elapsed)
				}
				router.Route()
				mu.Unlock()
			}
		}
	}()

	repl := &ipstack.ReplNode{
		Interfaces: router.Interfaces(),
		Links:      links,
		Table:      &router.ForwardingTable,
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "q" || args[0] == "exit" {
			break
		}

		mu.Lock()
		ok := repl.HandleCommand(os.Stdout, args)
		mu.Unlock()
		if !ok {
			fmt.Println("Unknown command")
		}
	}
	cancel()
}

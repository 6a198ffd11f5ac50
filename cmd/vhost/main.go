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
	"ip-tcp-in-peace/pkg/tcpstack"
)

func main() {
	if len(os.Args) != 3 || os.Args[1] != "--config" {
		fmt.Println("Usage: vhost --config <lnx file>")
		os.Exit(1)
	}

	cfg, err := lnxconfig.ParseConfig(os.Args[2])
	if err != nil {
		fmt.Println("Error parsing config:", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	stack, links, err := ipstack.InitHost(cfg)
	if err != nil {
		fmt.Println("Error initializing node:", err)
		os.Exit(1)
	}

	tcpCfg := tcpstack.DefaultConfig()
	tcpCfg.RTO = cfg.TCPRTO
	tcpCfg.SendCapacity = cfg.TCPCapacity
	tcpCfg.RecvCapacity = cfg.TCPCapacity
	tcp := tcpstack.InitTCPStack(stack, tcpCfg)

	stack.RegisterHandler(ipstack.TEST_PROTOCOL, ipstack.PrintPacket(os.Stdout))
	stack.RegisterHandler(ipstack.TCP_PROTOCOL, tcp.HandlePacket)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// The stack is single-threaded; every entry into it holds mu.
	var mu sync.Mutex
	deliver := func() {
		stack.Deliver()
		tcp.AcceptPending(os.Stdout)
	}

	for i, link := range links {
		iface := stack.Interfaces[i]
		go func(link *ipstack.UDPLink) {
			err := link.Listen(ctx, func(frame ipstack.EthernetFrame) {
				mu.Lock()
				defer mu.Unlock()
				iface.RecvFrame(frame)
				deliver()
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
				stack.Tick(elapsed)
				tcp.Tick(elapsed)
				deliver()
				mu.Unlock()
			}
		}
	}()

	repl := &ipstack.ReplNode{
		Interfaces: stack.Interfaces,
		Links:      links,
		Table:      &stack.ForwardingTable,
		SendIP:     stack.SendIP,
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
		ok := repl.HandleCommand(os.Stdout, args) || tcp.HandleCommand(os.Stdout, args)
		if !ok && args[0] == "help" {
			tcpstack.PrintHelp(os.Stdout)
			ok = true
		}
		deliver()
		mu.Unlock()
		if !ok {
			fmt.Println("Unknown command")
		}
	}
	cancel()
}
